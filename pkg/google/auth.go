package google

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"

	"github.com/costwise/costwise/internal/config"
	"github.com/costwise/costwise/internal/rest"
	"github.com/costwise/costwise/pkg/user"
)

type googleAuthRedirect struct {
	RedirectUrl string `json:"redirectUrl"`
}

type googleAuthStatus struct {
	Connected bool `json:"connected"`
}

// GoogleAuth owns the OAuth flow for the Sheets export and the stored
// tokens. One row per user in google_tokens; the row is created when the
// flow starts and filled in by the callback.
type GoogleAuth struct {
	db          *sql.DB
	oauthConfig *oauth2.Config
}

func NewGoogleAuth(db *sql.DB, cfg config.Application) *GoogleAuth {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Google.ClientId,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.Host + "/api/integrations/google/auth/callback",
		Scopes:       []string{sheets.SpreadsheetsScope},
	}

	return &GoogleAuth{db: db, oauthConfig: oauthConfig}
}

func (g *GoogleAuth) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userId, err := user.CurrentId(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		http.Error(w, "unable to retrieve current user", http.StatusInternalServerError)
		return
	}

	_, err = g.db.Exec("DELETE FROM google_tokens WHERE user_id = $1", userId)
	if err != nil {
		log.Errorf("failed to delete old Google auth row for user %s: %v", userId, err)
		g.writeAuthError(w)
		return
	}

	stateNonce := uuid.New().String()
	finalUrl := r.URL.Query().Get("finalUrl")

	// The nonce ties the callback to this user's row.
	_, err = g.db.Exec("INSERT INTO google_tokens (user_id, nonce) VALUES ($1, $2)", userId, stateNonce)
	if err != nil {
		log.Errorf("failed to store Google auth nonce for user %s: %v", userId, err)
		g.writeAuthError(w)
		return
	}

	log.Tracef("Redirecting to Google auth URL with nonce: %s", stateNonce)
	u := g.oauthConfig.AuthCodeURL(finalUrl+"|"+stateNonce, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	w.WriteHeader(http.StatusOK)
	encodeErr := json.NewEncoder(w).Encode(googleAuthRedirect{
		RedirectUrl: u,
	})
	if encodeErr != nil {
		http.Error(w, encodeErr.Error(), http.StatusInternalServerError)
	}
}

func (g *GoogleAuth) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	code := r.FormValue("code")
	state := r.FormValue("state")

	parts := strings.SplitN(state, "|", 2)
	if len(parts) != 2 {
		log.Errorf("malformed Google auth state: %q", state)
		http.Error(w, "malformed state", http.StatusBadRequest)
		return
	}
	finalUrl := parts[0]
	nonce := parts[1]

	token, err := g.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		err := fmt.Errorf("unable to exchange code for token: %v", err)
		log.Error(err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}

	// The nonce is cleared so a replayed callback cannot overwrite the row.
	result, err := g.db.Exec(`UPDATE google_tokens
			SET access_token = $1, refresh_token = $2, token_type = $3, expiry = $4, nonce = ''
			WHERE nonce = $5`,
		token.AccessToken, token.RefreshToken, token.TokenType, token.Expiry.UTC().Format(time.RFC3339), nonce)
	if err != nil {
		err := fmt.Errorf("unable to store Google auth token for nonce: %v", err)
		log.Error(err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		log.Errorf("no Google auth row matched nonce: %s", nonce)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}
	log.Debug("Successfully stored Google auth token for nonce: ", nonce)
	http.Redirect(w, r, finalUrl+"?success=true", http.StatusFound)
}

func (g *GoogleAuth) OAuthLogout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		http.Error(w, "unable to retrieve current user", http.StatusInternalServerError)
		return
	}
	_, err = g.db.Exec("DELETE FROM google_tokens WHERE user_id = $1", userId)
	if err != nil {
		log.Errorf("failed to delete Google auth row for user %s: %v", userId, err)
		g.writeAuthError(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status reports whether the current user has a completed Sheets connection.
func (g *GoogleAuth) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		http.Error(w, "unable to retrieve current user", http.StatusInternalServerError)
		return
	}
	token, err := g.getToken(r.Context(), userId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := json.NewEncoder(w).Encode(googleAuthStatus{Connected: token != nil}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (g *GoogleAuth) writeAuthError(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
	encodeErr := json.NewEncoder(w).Encode(rest.ErrorResponse{
		Error: "Failed to handle Google authentication",
	})
	if encodeErr != nil {
		http.Error(w, encodeErr.Error(), http.StatusInternalServerError)
	}
}

// getToken returns the stored token of a user, or nil when the user never
// finished the OAuth flow.
func (g *GoogleAuth) getToken(ctx context.Context, userId string) (*oauth2.Token, error) {
	var token oauth2.Token
	var expiry string
	err := g.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, token_type, expiry FROM google_tokens WHERE user_id = $1 AND access_token != ''",
		userId).
		Scan(&token.AccessToken, &token.RefreshToken, &token.TokenType, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("unable to retrieve Google auth token: %v", err)
	}

	if expiry != "" {
		if token.Expiry, err = time.Parse(time.RFC3339, expiry); err != nil {
			return nil, fmt.Errorf("invalid token expiry %q: %w", expiry, err)
		}
	}
	return &token, nil
}

// storeToken writes a refreshed token back. A refresh response may come
// without a refresh token, then the stored one stays.
func (g *GoogleAuth) storeToken(ctx context.Context, userId string, token *oauth2.Token) error {
	_, err := g.db.ExecContext(ctx, `UPDATE google_tokens
			SET access_token = $1, token_type = $2, expiry = $3,
				refresh_token = CASE WHEN $4 = '' THEN refresh_token ELSE $4 END
			WHERE user_id = $5`,
		token.AccessToken, token.TokenType, token.Expiry.UTC().Format(time.RFC3339), token.RefreshToken, userId)
	if err != nil {
		return fmt.Errorf("unable to store refreshed Google auth token: %w", err)
	}
	return nil
}

// tokenSource returns a refreshing token source for the user, or nil when
// the user has no Sheets connection. Refreshed tokens are persisted so the
// next process start does not have to refresh again.
func (g *GoogleAuth) tokenSource(ctx context.Context, userId string) (oauth2.TokenSource, error) {
	token, err := g.getToken(ctx, userId)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, nil
	}
	return &persistingTokenSource{
		auth:   g,
		userId: userId,
		source: g.oauthConfig.TokenSource(ctx, token),
		last:   token,
	}, nil
}

type persistingTokenSource struct {
	auth   *GoogleAuth
	userId string
	source oauth2.TokenSource
	mu     sync.Mutex
	last   *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || token.AccessToken != s.last.AccessToken {
		if err := s.auth.storeToken(context.Background(), s.userId, token); err != nil {
			// The token still works for this process, so only warn.
			log.Warnf("failed to persist refreshed Google token for user %s: %v", s.userId, err)
		}
		s.last = token
	}
	return token, nil
}
