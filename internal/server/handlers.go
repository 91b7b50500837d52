package server

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patmakesapps/cortexagent/internal/accounts"
	"github.com/patmakesapps/cortexagent/internal/actor"
	"github.com/patmakesapps/cortexagent/internal/pipeline"
	"github.com/patmakesapps/cortexagent/internal/prepare"
	"github.com/patmakesapps/cortexagent/internal/resolver"
	"github.com/patmakesapps/cortexagent/internal/version"
)

// headerUserID identifies the caller. The gateway in front of this
// service authenticates the user and forwards the ID.
const headerUserID = "X-User-ID"

const googleProvider = "google"

type chatRequest struct {
	Message string `json:"message"`
}

type decisionPayload struct {
	Action     string  `json:"action"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

type sourcePayload struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type chatResponse struct {
	ThreadID string                 `json:"thread_id"`
	Response string                 `json:"response"`
	Decision decisionPayload        `json:"decision"`
	Sources  []sourcePayload        `json:"sources,omitempty"`
	Pipeline []resolver.StepPayload `json:"pipeline,omitempty"`
	Tier     string                 `json:"tier,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	threadID := strings.TrimSpace(r.PathValue("id"))
	if threadID == "" {
		writeInvalidRequest(w, "thread id is required")
		return
	}
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeInvalidRequest(w, headerUserID+" header is required")
		return
	}

	var request chatRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	message := strings.TrimSpace(request.Message)
	if message == "" {
		writeInvalidRequest(w, "message is required")
		return
	}

	ctx := actor.WithUser(r.Context(), userID)

	if s.deps.PrepareScript != "" {
		result, err := prepare.Run(s.deps.PrepareScript, message, threadID)
		if err != nil {
			s.deps.Logger.Warn("prepare hook failed, continuing with original text",
				zap.String("thread_id", threadID), zap.Error(err))
		} else if !result.Resolve {
			writeJSON(w, http.StatusOK, chatResponse{
				ThreadID: threadID,
				Response: result.Text,
				Decision: decisionPayload{Action: "chat", Reason: "prepare_hook", Confidence: 1.0},
				Tier:     "prepare",
			})
			return
		} else {
			message = result.Text
		}
	}

	auth := pipeline.AuthContext{UserID: userID}
	if s.deps.Credentials != nil {
		creds, err := s.deps.Credentials.Resolve(ctx, userID, googleProvider)
		switch {
		case err == nil:
			auth.AccessToken = creds.AccessToken
			auth.TokenRefreshed = creds.TokenRefreshed
		case accounts.IsNotConnected(err):
			// The adapters answer with a reconnect message when a
			// Google step actually runs; chat-only turns don't care.
		default:
			s.deps.Logger.Warn("credential resolution failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	resp := s.deps.Resolver.Resolve(ctx, resolver.Turn{
		ThreadID: threadID,
		UserText: message,
		Auth:     auth,
	})

	out := chatResponse{
		ThreadID: resp.ThreadID,
		Response: resp.Response,
		Decision: decisionPayload{
			Action:     resp.Decision.Action,
			Reason:     resp.Decision.Reason,
			Confidence: resp.Decision.Confidence,
		},
		Pipeline: resp.Pipeline,
		Tier:     resp.Tier,
	}
	for _, src := range resp.Sources {
		out.Sources = append(out.Sources, sourcePayload{
			Title:   src.Title,
			URL:     src.URL,
			Snippet: src.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type googleConnectRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

type googleStatusResponse struct {
	Connected bool   `json:"connected"`
	Email     string `json:"email,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (s *Server) handleGoogleConnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.OAuth == nil || !s.deps.OAuth.Configured() || s.deps.Accounts == nil {
		writeError(w, http.StatusServiceUnavailable, errorCodeNotConfigured, "google integration is not configured")
		return
	}
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeInvalidRequest(w, headerUserID+" header is required")
		return
	}

	var request googleConnectRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(request.Code) == "" {
		writeInvalidRequest(w, "code is required")
		return
	}

	exchange, err := s.deps.OAuth.ExchangeCode(r.Context(), request.Code, request.CodeVerifier)
	if err != nil {
		s.deps.Logger.Warn("google code exchange failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusBadGateway, errorCodeUpstream, "google code exchange failed")
		return
	}

	profile, err := s.deps.OAuth.UserInfo(r.Context(), exchange.AccessToken)
	if err != nil {
		s.deps.Logger.Warn("google userinfo failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusBadGateway, errorCodeUpstream, "google profile lookup failed")
		return
	}
	sub, _ := profile["sub"].(string)
	email, _ := profile["email"].(string)
	name, _ := profile["name"].(string)
	if sub == "" {
		writeError(w, http.StatusBadGateway, errorCodeUpstream, "google profile missing subject")
		return
	}

	account, err := s.deps.Accounts.Upsert(accounts.Account{
		UserID:            userID,
		Provider:          googleProvider,
		ProviderAccountID: sub,
		AccessToken:       exchange.AccessToken,
		RefreshToken:      exchange.RefreshToken,
		TokenType:         exchange.TokenType,
		Scope:             exchange.Scope,
		ExpiresAt:         exchange.ExpiresAt(),
		Email:             email,
		DisplayName:       name,
	})
	if err != nil {
		s.deps.Logger.Error("account upsert failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, errorCodeInternal, "failed to store account")
		return
	}
	s.deps.TokenCache.Put(r.Context(), userID, googleProvider, exchange.AccessToken, exchange.ExpiresAt())

	writeJSON(w, http.StatusOK, googleStatusResponse{
		Connected: true,
		Email:     account.Email,
		ExpiresAt: formatExpiry(account.ExpiresAt),
	})
}

func (s *Server) handleGoogleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		writeError(w, http.StatusServiceUnavailable, errorCodeNotConfigured, "google integration is not configured")
		return
	}
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeInvalidRequest(w, headerUserID+" header is required")
		return
	}

	account, err := s.deps.Accounts.GetActive(userID, googleProvider)
	if accounts.IsNotConnected(err) {
		writeJSON(w, http.StatusOK, googleStatusResponse{Connected: false})
		return
	}
	if err != nil {
		s.deps.Logger.Error("account lookup failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, errorCodeInternal, "failed to read account")
		return
	}
	writeJSON(w, http.StatusOK, googleStatusResponse{
		Connected: true,
		Email:     account.Email,
		ExpiresAt: formatExpiry(account.ExpiresAt),
	})
}

func (s *Server) handleGoogleDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Accounts == nil {
		writeError(w, http.StatusServiceUnavailable, errorCodeNotConfigured, "google integration is not configured")
		return
	}
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeInvalidRequest(w, headerUserID+" header is required")
		return
	}

	if err := s.deps.Accounts.Disconnect(userID, googleProvider); err != nil {
		s.deps.Logger.Error("disconnect failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, errorCodeInternal, "failed to disconnect account")
		return
	}
	s.deps.TokenCache.Drop(r.Context(), userID, googleProvider)
	writeJSON(w, http.StatusOK, googleStatusResponse{Connected: false})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Get().Version,
	})
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
