package signalling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"wormhole/internal/config"
	"wormhole/internal/logging"
	"wormhole/internal/wormhole"
)

const defaultPollInterval = time.Second

var (
	errNameplateTaken = errors.New("nameplate already in use")
	errAlreadyClaimed = fmt.Errorf("%w: already claimed by another receiver", wormhole.ErrNameplateNotFound)
)

// nameplate ranges tried in order, a few random picks each
var nameplateLimits = []int{9, 99, 999, 9999}

const claimAttemptsPerRange = 3

// Session is the record kept per nameplate. Descriptions are vanilla ICE
// offers/answers, so one write per side is enough.
type Session struct {
	Nameplate string `json:"nameplate"`
	Offer     string `json:"offer"`
	Answer    string `json:"answer"`
	CreatedAt int64  `json:"createdAt"`
}

// FirebaseClient is a SignalingServer on the Firebase Realtime Database
type FirebaseClient struct {
	db           *db.Client
	ref          *db.Ref
	pollInterval time.Duration
	staleAfter   time.Duration
	log          logrus.FieldLogger
}

// NewFirebaseClient connects to the database at cfg.MailboxURL(). Sessions are
// stored under a root derived from the application id so unrelated
// applications never see each other's nameplates.
func NewFirebaseClient(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*FirebaseClient, error) {
	var opts []option.ClientOption
	if path := cfg.Firebase().CredentialsPath; path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}

	firebaseConfig := &firebase.Config{
		DatabaseURL: cfg.MailboxURL(),
	}

	app, err := firebase.NewApp(ctx, firebaseConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	return &FirebaseClient{
		db:           client,
		ref:          client.NewRef(SessionRoot(cfg.AppID())),
		pollInterval: defaultPollInterval,
		staleAfter:   cfg.Timeouts().Handshake,
		log:          logging.OrDefault(log),
	}, nil
}

// SessionRoot maps an application id onto a valid database path. Keys may not
// contain any of . $ # [ ] /
func SessionRoot(appID string) string {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '.', '$', '#', '[', ']', '/':
			return '_'
		}
		return r
	}, appID)
	return key + "/nameplates"
}

// ClaimNameplate reserves a random free nameplate, preferring short ones.
// Sessions abandoned for longer than the handshake timeout are reclaimed.
func (f *FirebaseClient) ClaimNameplate(ctx context.Context) (string, error) {
	return claimNameplate(ctx, func(nameplate string) error {
		return f.ref.Child(nameplate).Transaction(ctx, func(node db.TransactionNode) (interface{}, error) {
			var existing Session
			if err := node.Unmarshal(&existing); err != nil {
				return nil, err
			}
			now := time.Now()
			if !claimable(existing, now, f.staleAfter) {
				return nil, errNameplateTaken
			}
			if existing.Nameplate != "" {
				f.log.WithField("nameplate", nameplate).Debug("Reclaiming abandoned nameplate")
			}
			return Session{Nameplate: nameplate, CreatedAt: now.Unix()}, nil
		})
	}, f.log)
}

// claimNameplate walks the ranges in nameplateLimits, trying a few random
// picks in each before widening
func claimNameplate(ctx context.Context, try func(nameplate string) error, log logrus.FieldLogger) (string, error) {
	for _, limit := range nameplateLimits {
		for range claimAttemptsPerRange {
			nameplate, err := wormhole.GenerateNameplate(limit)
			if err != nil {
				return "", err
			}

			err = try(nameplate)
			if err == nil {
				log.WithField("nameplate", nameplate).Debug("Nameplate claimed")
				return nameplate, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !errors.Is(err, errNameplateTaken) {
				return "", fmt.Errorf("error claiming nameplate %s: %w", nameplate, err)
			}
		}
	}
	return "", fmt.Errorf("no free nameplate below %d", nameplateLimits[len(nameplateLimits)-1])
}

// claimable reports whether a stored session may be replaced: it is empty, or
// its sender has been gone for longer than staleAfter
func claimable(existing Session, now time.Time, staleAfter time.Duration) bool {
	if existing.Nameplate == "" {
		return true
	}
	return now.Sub(time.Unix(existing.CreatedAt, 0)) > staleAfter
}

func (f *FirebaseClient) PutOffer(ctx context.Context, nameplate, offer string) error {
	if err := f.ref.Child(nameplate).Update(ctx, map[string]any{"offer": offer}); err != nil {
		return fmt.Errorf("error publishing offer for nameplate %s: %w", nameplate, err)
	}
	return nil
}

// WaitForOffer polls until the sender published its offer. A receiver may show
// up while the sender is still gathering candidates.
func (f *FirebaseClient) WaitForOffer(ctx context.Context, nameplate string) (string, error) {
	return f.poll(ctx, nameplate, func(s Session) string { return s.Offer })
}

func (f *FirebaseClient) UpdateAnswer(ctx context.Context, nameplate, answer string) error {
	err := f.ref.Child(nameplate).Transaction(ctx, func(node db.TransactionNode) (interface{}, error) {
		var session Session
		if err := node.Unmarshal(&session); err != nil {
			return nil, err
		}
		if session.Nameplate == "" {
			return nil, fmt.Errorf("nameplate %s: %w", nameplate, wormhole.ErrNameplateNotFound)
		}
		if session.Answer != "" {
			return nil, errAlreadyClaimed
		}
		session.Answer = answer
		return session, nil
	})
	if err != nil {
		return fmt.Errorf("error updating answer for nameplate %s: %w", nameplate, err)
	}
	return nil
}

func (f *FirebaseClient) WaitForAnswer(ctx context.Context, nameplate string) (string, error) {
	return f.poll(ctx, nameplate, func(s Session) string { return s.Answer })
}

func (f *FirebaseClient) DeleteSession(ctx context.Context, nameplate string) error {
	if err := f.ref.Child(nameplate).Delete(ctx); err != nil {
		return fmt.Errorf("error deleting session %s: %w", nameplate, err)
	}
	return nil
}

// poll reads the session until field is set, the session disappears or ctx ends
func (f *FirebaseClient) poll(ctx context.Context, nameplate string, field func(Session) string) (string, error) {
	sessionRef := f.ref.Child(nameplate)
	for {
		var session Session
		if err := sessionRef.Get(ctx, &session); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			f.log.WithError(err).WithField("nameplate", nameplate).Warn("Failed to read session, retrying")
		} else {
			if session.Nameplate == "" {
				return "", fmt.Errorf("nameplate %s: %w", nameplate, wormhole.ErrNameplateNotFound)
			}
			if value := field(session); value != "" {
				return value, nil
			}
		}

		select {
		case <-time.After(f.pollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
