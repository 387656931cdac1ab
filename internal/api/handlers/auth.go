package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/acectf/registration/internal/api/dto"
	"github.com/acectf/registration/internal/api/middleware"
	"github.com/acectf/registration/internal/auth"
	"github.com/acectf/registration/internal/captcha"
	"github.com/acectf/registration/internal/ctfd"
)

const tokenCookieMaxAge = 7 * 24 * 3600

// ssoTimeout bounds the optional scoring-platform call made during login.
const ssoTimeout = 2 * time.Second

type AuthHandler struct {
	authService *auth.Service
	captcha     *captcha.Verifier
	ctfd        *ctfd.Client
	logger      *slog.Logger
}

func NewAuthHandler(authService *auth.Service, verifier *captcha.Verifier, client *ctfd.Client, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, captcha: verifier, ctfd: client, logger: logger}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Corps de requête invalide."))
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.Invalid(errs))
		return
	}

	if h.captcha.Required() {
		if !h.captcha.Verify(r.Context(), req.CaptchaToken, remoteIP(r)) {
			writeJSON(w, http.StatusBadRequest, dto.Fail("Vérification CAPTCHA échouée."))
			return
		}
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		School:    req.School,
		Grade:     req.Grade,
		Specialty: req.Specialty,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			writeJSON(w, http.StatusConflict, dto.Fail("Un compte existe déjà avec cet email."))
		case errors.Is(err, auth.ErrPasswordTooShort):
			writeJSON(w, http.StatusBadRequest, dto.Fail("Le mot de passe doit contenir au moins 8 caractères."))
		default:
			h.logger.Error("registration failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.Fail("L'inscription a échoué."))
		}
		return
	}

	writeJSON(w, http.StatusCreated, dto.OK(
		"Inscription réussie. Vérifiez votre boîte mail pour activer votre compte.",
		dto.NewUserDTO(user),
	))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Corps de requête invalide."))
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.Invalid(errs))
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, dto.Fail("Email ou mot de passe incorrect."))
			return
		}
		h.logger.Error("login failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("La connexion a échoué."))
		return
	}

	setTokenCookie(w, resp.Token)

	payload := dto.AuthResponse{
		Token: resp.Token,
		User:  dto.NewUserDTO(resp.User),
	}

	// Best effort only; a slow or down scoring platform must not delay login.
	if h.ctfd.Enabled() && resp.User.CTFdUserID != nil {
		ssoCtx, cancel := context.WithTimeout(r.Context(), ssoTimeout)
		defer cancel()
		if token, err := h.ctfd.SSOToken(ssoCtx, *resp.User.CTFdUserID); err == nil && token != "" {
			payload.CTFdToken = token
		}
	}

	writeJSON(w, http.StatusOK, dto.OK("Connexion réussie.", payload))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, dto.OK("Déconnexion réussie.", nil))
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var req dto.VerifyEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.Token
		}
	}
	if token == "" {
		writeJSON(w, http.StatusBadRequest, dto.Fail("Le jeton de vérification est requis."))
		return
	}

	user, err := h.authService.VerifyEmail(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrVerificationExpired):
			writeJSON(w, http.StatusGone, dto.Fail("Le lien de vérification a expiré. Demandez un nouvel envoi."))
		case errors.Is(err, auth.ErrVerificationInvalid):
			writeJSON(w, http.StatusBadRequest, dto.Fail("Le lien de vérification est invalide."))
		default:
			h.logger.Error("email verification failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.Fail("La vérification a échoué."))
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.OK("Email vérifié. Vous pouvez maintenant rejoindre ou créer une équipe.", dto.NewUserDTO(user)))
}

// ResendVerification always answers 200 for well-formed requests so the
// endpoint cannot be used to probe which emails are registered.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req dto.ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, dto.Fail("L'email est requis."))
		return
	}

	if err := h.authService.ResendVerification(r.Context(), req.Email); err != nil {
		h.logger.Error("resend verification failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("L'envoi a échoué."))
		return
	}

	writeJSON(w, http.StatusOK, dto.OK("Si un compte existe pour cet email, un nouveau lien a été envoyé.", nil))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, dto.Fail("Authentification requise."))
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, dto.Fail("Utilisateur introuvable."))
			return
		}
		h.logger.Error("load current user failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.Fail("Erreur interne du serveur."))
		return
	}

	writeJSON(w, http.StatusOK, dto.OK("", dto.NewUserDTO(user)))
}

func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // behind TLS-terminating proxy in production
		SameSite: http.SameSiteLaxMode,
		MaxAge:   tokenCookieMaxAge,
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
