package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/GoDerive/derivegate/internal/pkg/logger"
	"github.com/GoDerive/derivegate/internal/pkg/metrics"
	"github.com/GoDerive/derivegate/internal/signer"
)

// Auth header names the exchange expects on private calls.
const (
	HeaderWallet    = "X-LyraWallet"
	HeaderTimestamp = "X-LyraTimestamp"
	HeaderSignature = "X-LyraSignature"
)

// sessionTTL bounds how long a signed timestamp header set is reused
// before being re-signed. The exchange rejects stale timestamps.
const sessionTTL = 60 * time.Second

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticating
	stateAuthenticated
)

// authTransport is the slice of the REST client the session manager
// needs: one authenticated POST to verify a fresh header set.
type authTransport interface {
	PostAuthenticated(ctx context.Context, path string, body any, headers map[string]string) (json.RawMessage, error)
}

// SessionManager owns the process-wide AuthContext: the wallet and
// subaccount identity plus the short-lived signed header set attached
// to authenticated calls. One session per process; refreshes are
// mutually exclusive, so concurrent callers observing an in-flight
// refresh wait for it instead of starting a second one.
type SessionManager struct {
	mu sync.Mutex

	signer        *signer.Signer
	client        authTransport
	walletAddress string
	subaccountID  int64

	state     sessionState
	headers   map[string]string
	expiresAt time.Time
}

func NewSessionManager(sig *signer.Signer, client authTransport, walletAddress string, subaccountID int64) *SessionManager {
	return &SessionManager{
		signer:        sig,
		client:        client,
		walletAddress: walletAddress,
		subaccountID:  subaccountID,
	}
}

func (m *SessionManager) SubaccountID() int64 {
	return m.subaccountID
}

func (m *SessionManager) WalletAddress() string {
	return m.walletAddress
}

// Headers returns the current auth header set, refreshing it first if
// absent or past its validity window. The mutex makes the whole
// Unauthenticated -> Authenticating -> Authenticated transition atomic
// from the caller's point of view.
func (m *SessionManager) Headers(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateAuthenticated && time.Now().Before(m.expiresAt) {
		return m.headers, nil
	}
	return m.refreshLocked(ctx)
}

// Invalidate drops the cached session after the exchange rejected it.
// The next Headers call re-authenticates.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = stateUnauthenticated
	m.headers = nil
	m.expiresAt = time.Time{}
}

// refreshLocked signs a fresh auth challenge and verifies it against a
// private endpoint. Caller holds the mutex.
func (m *SessionManager) refreshLocked(ctx context.Context) (map[string]string, error) {
	m.state = stateAuthenticating

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig, err := m.signer.SignAuthChallenge(timestamp)
	if err != nil {
		m.state = stateUnauthenticated
		return nil, err
	}

	headers := map[string]string{
		HeaderWallet:    m.walletAddress,
		HeaderTimestamp: timestamp,
		HeaderSignature: sig,
	}

	body := map[string]any{"subaccount_id": m.subaccountID}
	if _, err := m.client.PostAuthenticated(ctx, "/private/get_subaccount", body, headers); err != nil {
		m.state = stateUnauthenticated
		if apperrors.IsType(err, apperrors.ErrAuthRejected) {
			return nil, apperrors.New(apperrors.ErrAuthFailed,
				fmt.Sprintf("exchange rejected session key for subaccount %d", m.subaccountID), err)
		}
		return nil, err
	}

	m.state = stateAuthenticated
	m.headers = headers
	m.expiresAt = time.Now().Add(sessionTTL)
	metrics.AuthRefreshes.Inc()
	logger.Debug("session authenticated", "wallet", m.walletAddress, "subaccount", m.subaccountID)
	return m.headers, nil
}
