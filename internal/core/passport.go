package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tracechain/internal/blob"
	"tracechain/pkg/domain"
)

// ErrNoBlobStore is returned by PublishPassport when no archive is configured.
var ErrNoBlobStore = errors.New("passport archive not configured")

// PassportURLExpiry bounds presigned passport links.
const PassportURLExpiry = 15 * time.Minute

// Passport is the consumer document archived for a lot.
type Passport struct {
	ConsumerView
	Analytics    Analytics `json:"analytics"`
	Badges       []string  `json:"badges"`
	Observations int       `json:"observations"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// PassportReceipt describes an archived passport.
type PassportReceipt struct {
	Blob blob.Info `json:"blob"`
	URL  string    `json:"url,omitempty"`
}

// PassportKey returns the archive key for a passport of lot generated at.
func PassportKey(lot string, at time.Time) string {
	return passportPrefix(lot) + PassportID(at) + ".json"
}

// PassportID names a passport generated at within its lot's archive.
func PassportID(at time.Time) string {
	return fmt.Sprintf("%d", at.UnixNano())
}

func passportPrefix(lot string) string {
	return "passports/" + lot + "/"
}

// BuildPassport renders the consumer document for p.
func BuildPassport(p Product, at time.Time) Passport {
	badges := append([]string{}, p.Badges...)
	return Passport{
		ConsumerView: consumerViewOf(p),
		Analytics:    Summarize(p),
		Badges:       badges,
		Observations: len(p.Observations),
		GeneratedAt:  at,
	}
}

// PublishPassport writes the current passport of lot to the configured blob
// archive. The ledger is not modified. A presigned URL is included when the
// archive supports one.
func (s *Service) PublishPassport(ctx context.Context, lot string) (PassportReceipt, error) {
	var receipt PassportReceipt
	err := s.run(ctx, opPublishPassport, lot, "", func(ctx context.Context) error {
		if s.opts.blobs == nil {
			return ErrNoBlobStore
		}
		var p Product
		if err := s.view(ctx, func(v TransactionView) error {
			found, err := findProduct(v.FindProduct, opPublishPassport, lot)
			p = found
			return err
		}); err != nil {
			return err
		}
		now := s.now()
		body, err := json.MarshalIndent(BuildPassport(p, now), "", "  ")
		if err != nil {
			return fmt.Errorf("encode passport: %w", err)
		}
		key := PassportKey(lot, now)
		info, err := s.opts.blobs.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"lot": lot, "stage": p.Stage.String()},
		})
		if err != nil {
			return fmt.Errorf("archive passport %s: %w", key, err)
		}
		receipt.Blob = info
		url, err := s.opts.blobs.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: PassportURLExpiry})
		switch {
		case err == nil:
			receipt.URL = url
		case errors.Is(err, blob.ErrUnsupported):
		default:
			s.opts.logger.Warn("presign passport failed", "lot", lot, "key", key, "error", err)
		}
		return nil
	})
	return receipt, err
}

// ListPassports returns the archived passports of lot, oldest first. Keys of
// other lots sharing the prefix are skipped.
func (s *Service) ListPassports(ctx context.Context, lot string) ([]blob.Info, error) {
	var out []blob.Info
	err := s.run(ctx, opListPassports, lot, "", func(ctx context.Context) error {
		if err := s.requireArchivedLot(ctx, opListPassports, lot); err != nil {
			return err
		}
		prefix := passportPrefix(lot)
		infos, err := s.opts.blobs.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list passports %s: %w", prefix, err)
		}
		out = make([]blob.Info, 0, len(infos))
		for _, info := range infos {
			rest := strings.TrimPrefix(info.Key, prefix)
			if strings.Contains(rest, "/") || !strings.HasSuffix(rest, ".json") {
				continue
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

// ReadPassport loads the passport of lot archived under id. A missing
// passport fails with blob.ErrNotFound.
func (s *Service) ReadPassport(ctx context.Context, lot, id string) (Passport, blob.Info, error) {
	var (
		passport Passport
		info     blob.Info
	)
	err := s.run(ctx, opReadPassport, lot, "", func(ctx context.Context) error {
		if err := s.requireArchivedLot(ctx, opReadPassport, lot); err != nil {
			return err
		}
		if id == "" || strings.ContainsAny(id, "/.") {
			return domain.NewLedgerError(domain.ErrInvalidKey, opReadPassport, lot, "invalid passport id %q", id)
		}
		key := passportPrefix(lot) + id + ".json"
		stored, rc, err := s.opts.blobs.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read passport %s: %w", key, err)
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read passport %s: %w", key, err)
		}
		if err := json.Unmarshal(raw, &passport); err != nil {
			return fmt.Errorf("decode passport %s: %w", key, err)
		}
		info = stored
		return nil
	})
	return passport, info, err
}

func (s *Service) requireArchivedLot(ctx context.Context, op, lot string) error {
	if s.opts.blobs == nil {
		return ErrNoBlobStore
	}
	return s.view(ctx, func(v TransactionView) error {
		_, err := findProduct(v.FindProduct, op, lot)
		return err
	})
}
