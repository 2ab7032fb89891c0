package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"github.com/tonimelisma/gdrive-mirror/internal/tokenfile"
)

// ReadonlyScope is the only scope the mirror ever requests. It grants no
// write or delete capability.
const ReadonlyScope = drive.DriveReadonlyScope

var (
	// ErrCredentialsMissing means interactive authorization was needed but
	// the client-secret file does not exist.
	ErrCredentialsMissing = errors.New("gdrive: client secret file not found")
	// ErrRefreshFailed means the saved token was expired and could not be
	// refreshed.
	ErrRefreshFailed = errors.New("gdrive: refreshing saved token failed")
)

// AuthOptions configures ObtainTokenSource.
type AuthOptions struct {
	TokenPath       string
	CredentialsPath string
	Scope           string
	// OpenURL launches a browser on the consent URL. If it is nil or fails,
	// the URL is printed to stderr instead.
	OpenURL func(string) error
	// ForceLogin ignores any saved token and always runs the browser flow.
	ForceLogin bool
	Logger     *slog.Logger
}

// ObtainTokenSource returns a token source for the Drive API:
//  1. A saved token with the required scope that is still valid is used as is.
//  2. A saved token that expired but has a refresh token is refreshed once
//     and persisted. A refresh failure is fatal.
//  3. Otherwise the browser flow runs against a loopback listener using the
//     client-secret file, and the new token is persisted.
//
// The returned source persists any later silent refresh to TokenPath.
func ObtainTokenSource(ctx context.Context, opts AuthOptions) (oauth2.TokenSource, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Scope == "" {
		opts.Scope = ReadonlyScope
	}

	if !opts.ForceLogin {
		ts, err := fromSavedToken(ctx, opts, logger)
		if err != nil || ts != nil {
			return ts, err
		}
	}

	return interactiveLogin(ctx, opts, logger)
}

// fromSavedToken returns (nil, nil) when there is no usable saved token and
// the browser flow should run.
func fromSavedToken(ctx context.Context, opts AuthOptions, logger *slog.Logger) (oauth2.TokenSource, error) {
	cred, err := tokenfile.Load(opts.TokenPath)
	if err != nil {
		logger.Warn("ignoring unreadable saved token",
			slog.String("path", opts.TokenPath),
			slog.String("error", err.Error()),
		)

		return nil, nil //nolint:nilnil // no usable token
	}

	if cred == nil {
		logger.Info("no saved token", slog.String("path", opts.TokenPath))
		return nil, nil //nolint:nilnil // no usable token
	}

	if !cred.HasScope(opts.Scope) {
		logger.Info("saved token lacks required scope",
			slog.String("path", opts.TokenPath),
			slog.String("scope", opts.Scope),
		)

		return nil, nil //nolint:nilnil // no usable token
	}

	cfg := savedConfig(cred, opts.Scope)
	tok := cred.Token

	logger.Info("loaded saved token",
		slog.String("path", opts.TokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("valid", tok.Valid()),
	)

	if tok.Valid() {
		return newPersistingSource(ctx, cfg, cred, opts.TokenPath, logger), nil
	}

	if tok.RefreshToken == "" {
		logger.Info("saved token expired without refresh token")
		return nil, nil //nolint:nilnil // no usable token
	}

	fresh, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("%w (run 'gdrive-mirror login'): %w", ErrRefreshFailed, err)
	}

	cred.Token = fresh

	if err := tokenfile.Save(opts.TokenPath, cred); err != nil {
		return nil, fmt.Errorf("gdrive: saving refreshed token: %w", err)
	}

	logger.Info("refreshed saved token", slog.Time("expiry", fresh.Expiry))

	return newPersistingSource(ctx, cfg, cred, opts.TokenPath, logger), nil
}

// savedConfig rebuilds the OAuth2 config from a saved credential. The token
// file carries the client identity, so refresh works without the
// client-secret file.
func savedConfig(cred *tokenfile.Credential, scope string) *oauth2.Config {
	tokenURL := cred.TokenURI
	if tokenURL == "" {
		tokenURL = google.Endpoint.TokenURL
	}

	return &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Scopes:       []string{scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  google.Endpoint.AuthURL,
			TokenURL: tokenURL,
		},
	}
}

// interactiveLogin runs the browser flow using the client-secret file and
// persists the resulting token.
func interactiveLogin(ctx context.Context, opts AuthOptions, logger *slog.Logger) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(opts.CredentialsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCredentialsMissing, opts.CredentialsPath)
	}

	if err != nil {
		return nil, fmt.Errorf("gdrive: reading client secret file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("gdrive: parsing client secret file %s: %w", opts.CredentialsPath, err)
	}

	tok, err := doAuthCodeLogin(ctx, cfg, opts.OpenURL, logger)
	if err != nil {
		return nil, err
	}

	cred := &tokenfile.Credential{
		Token:        tok,
		TokenURI:     cfg.Endpoint.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{opts.Scope},
	}

	if err := tokenfile.Save(opts.TokenPath, cred); err != nil {
		return nil, fmt.Errorf("gdrive: saving token: %w", err)
	}

	logger.Info("browser login successful",
		slog.String("path", opts.TokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return newPersistingSource(ctx, cfg, cred, opts.TokenPath, logger), nil
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the HTTP path the OAuth2 redirect hits on the local server.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// doAuthCodeLogin implements the authorization code + PKCE flow against a
// transient loopback listener and returns the exchanged token.
func doAuthCodeLogin(
	ctx context.Context,
	cfg *oauth2.Config,
	openURL func(string) error,
	logger *slog.Logger,
) (*oauth2.Token, error) {
	logger.Info("starting browser auth flow")

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, logger)

	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("gdrive: generating state token: %w", err)
	}

	registerCallbackHandler(mux, state, resultCh)

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	launchBrowser(authURL, openURL, logger)

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	logger.Info("received authorization code, exchanging for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("gdrive: token exchange failed: %w", err)
	}

	return tok, nil
}

// startCallbackServer binds to 127.0.0.1:0 and serves mux. Returns the
// server and the chosen port.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("gdrive: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("gdrive: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("gdrive: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, port, nil
}

func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends the
// result. Only the first result is delivered; later hits (favicon, reloads)
// are answered but dropped.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	send := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("gdrive: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("gdrive: authorization failed: %s", errParam)})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("gdrive: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	send(callbackResult{code: code})
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If it fails, prints the URL
// to stderr so the user can copy-paste it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	if openURL == nil {
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
		return
	}

	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("gdrive: browser auth canceled: %w", ctx.Err())
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// Logout removes the saved token file. A missing file is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	removed, err := tokenfile.Remove(tokenPath)
	if err != nil {
		return err
	}

	if !removed {
		logger.Info("logout: no token file to remove", slog.String("path", tokenPath))
		return nil
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}

// persistingSource reuses a token until it expires and writes every newly
// issued token back to the token file. Persistence failures are logged, not
// returned: the in-memory token is still good for this run.
type persistingSource struct {
	src    oauth2.TokenSource
	cred   tokenfile.Credential
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func newPersistingSource(
	ctx context.Context, cfg *oauth2.Config, cred *tokenfile.Credential, path string, logger *slog.Logger,
) oauth2.TokenSource {
	// The refresh context must outlive the caller's cancellation so a
	// refresh mid-shutdown still reports a clean error.
	refreshCtx := context.WithoutCancel(ctx)

	return &persistingSource{
		src:    cfg.TokenSource(refreshCtx, cred.Token),
		cred:   *cred,
		path:   path,
		logger: logger,
		last:   cred.Token.AccessToken,
	}
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("gdrive: obtaining token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken == p.last {
		return tok, nil
	}

	p.last = tok.AccessToken
	cred := p.cred
	cred.Token = tok

	if err := tokenfile.Save(p.path, &cred); err != nil {
		p.logger.Warn("failed to persist refreshed token",
			slog.String("path", p.path),
			slog.String("error", err.Error()),
		)

		return tok, nil
	}

	p.logger.Info("persisted refreshed token",
		slog.String("path", p.path),
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}
