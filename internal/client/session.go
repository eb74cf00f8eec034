package client

import (
	"encoding/json"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
)

type (
	// Session is the durable part of an authenticated client: the bearer
	// token plus the profile it was issued to.
	Session struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}

	// SessionStore persists a session as a JSON file so a restarted client
	// picks up where it left off.
	SessionStore struct {
		path string
	}
)

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Load returns the stored session, or nil if none has been saved.
func (s *SessionStore) Load() (*Session, error) {
	raw, err := ioutil.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read session file")
	}

	session := Session{}
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, errors.Wrap(err, "unmarshal session")
	}
	if session.Token == "" {
		return nil, nil
	}
	return &session, nil
}

func (s *SessionStore) Save(session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	if err := ioutil.WriteFile(s.path, raw, 0600); err != nil {
		return errors.Wrap(err, "write session file")
	}
	return nil
}

func (s *SessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove session file")
	}
	return nil
}
