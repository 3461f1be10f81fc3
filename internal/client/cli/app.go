// Package cli is the cytoguard command line: a cobra tree over the gRPC
// client. Sessions live on the server, so a token printed by
// "session start" is passed back with --token (or CYTOGUARD_TOKEN) on later
// invocations; "triage" runs a whole scan in one throwaway session.
package cli

import (
	"context"
	"io"

	"github.com/dmitrijs2005/cytoguard/internal/client"
	"github.com/dmitrijs2005/cytoguard/internal/client/config"
)

// TokenEnvVar supplies --token when the flag is absent.
const TokenEnvVar = "CYTOGUARD_TOKEN"

// Client is what the commands need from the transport.
type Client interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	Upload(ctx context.Context, filename, mime string, data []byte) (*client.StoredFile, error)
	Analyze(ctx context.Context, name string) (*client.Diagnosis, error)
	History(ctx context.Context) ([]client.HistoryItem, error)
	ClearHistory(ctx context.Context) error
	Report(ctx context.Context, index int) (*client.Report, error)
	EndSession(ctx context.Context) error
	SetToken(token string)
	Close() error
}

// Dialer opens a Client for cfg.
type Dialer func(cfg *config.Config) (Client, error)

// DialGRPC is the production Dialer.
func DialGRPC(cfg *config.Config) (Client, error) {
	return client.NewGRPCClient(cfg.ServerEndpointAddr, client.WithMaxMessageSize(cfg.MaxMessageBytes))
}

type App struct {
	dial       Dialer
	out        io.Writer
	width      int
	config     *config.Config
	configPath string
	addr       string
	token      string
	userID     string
}

func NewApp(dial Dialer, out io.Writer, width int) *App {
	return &App{dial: dial, out: out, width: width}
}

// connect dials the server and resumes --token when one was given.
func (a *App) connect() (Client, error) {
	c, err := a.dial(a.config)
	if err != nil {
		return nil, err
	}
	if a.token != "" {
		c.SetToken(a.token)
	}
	return c, nil
}

func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}
