// Package agents builds the per-request capability bundle handlers receive:
// the functionality agent (tokens, hashing, sessions), the schema agent
// (repositories, validators, localized resources resolved from the ambient
// domain), and the integration agent (external collaborators).
package agents

import (
	"context"

	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/internal/scrambler"
	"github.com/chassisworks/chassis/internal/sessionstore"
	"github.com/chassisworks/chassis/internal/storage"
)

// Factory builds agent bundles. The bundle is rebuilt for every request
// because the schema agent is derived from the currently active domain.
type Factory struct {
	scrambler *scrambler.Scrambler
	sessions  sessionstore.Store
	connector *storage.Connector
	mail      domain.MailSender
}

// NewFactory wires the factory's collaborators once at startup.
func NewFactory(scr *scrambler.Scrambler, sessions sessionstore.Store, connector *storage.Connector, mail domain.MailSender) *Factory {
	if mail == nil {
		mail = noopMail{}
	}
	return &Factory{scrambler: scr, sessions: sessions, connector: connector, mail: mail}
}

// Bundle builds a fresh agent bundle for one request or message.
func (f *Factory) Bundle() *domain.Agents {
	return &domain.Agents{
		Functionality: &functionality{scrambler: f.scrambler, sessions: f.sessions},
		Schema:        &schemaAgent{connector: f.connector},
		Integration:   &integration{mail: f.mail},
	}
}

type functionality struct {
	scrambler *scrambler.Scrambler
	sessions  sessionstore.Store
}

func (a *functionality) AccessToken(payload map[string]interface{}) (domain.TokenInfo, error) {
	return a.scrambler.AccessToken(payload)
}

func (a *functionality) RefreshToken(payload map[string]interface{}) (domain.TokenInfo, error) {
	return a.scrambler.RefreshToken(payload)
}

func (a *functionality) VerifyToken(token string) (map[string]interface{}, error) {
	return a.scrambler.Verify(token)
}

func (a *functionality) HashPassword(password string) (string, error) {
	return a.scrambler.HashPassword(password)
}

func (a *functionality) ComparePassword(candidate, hashed string) (bool, error) {
	return a.scrambler.ComparePassword(candidate, hashed)
}

func (a *functionality) RandomHash() (string, error) {
	return a.scrambler.RandomHash()
}

func (a *functionality) OpenSession(ctx context.Context, userID string, payload map[string]interface{}) (string, error) {
	return a.sessions.Open(ctx, userID, sessionstore.Record(payload))
}

func (a *functionality) CloseSession(ctx context.Context, userID, sessionID string) error {
	return a.sessions.Delete(ctx, userID, sessionID)
}

func (a *functionality) SessionCount(ctx context.Context, userID string) (int, error) {
	return a.sessions.Count(ctx, userID)
}

type integration struct {
	mail domain.MailSender
}

func (a *integration) Mail() domain.MailSender { return a.mail }

// noopMail satisfies the mail collaborator interface when delivery is not
// wired. Delivery itself is out of scope for the gateway.
type noopMail struct{}

func (noopMail) Send(ctx context.Context, mail domain.Mail) error { return nil }
