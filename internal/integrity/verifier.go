// Package integrity gates document content on the server-declared digest.
//
// The verifier runs exactly once per downloaded artifact, before a session can
// become active. A mismatching artifact is destroyed before the error is
// returned; callers must re-issue and re-download rather than retry.
package integrity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"os"

	dErrors "docguard/pkg/domain-errors"
)

const defaultBufferSize = 64 * 1024

// Verified is proof that an artifact matched its expected checksum. Only this
// package can mint one, which is what lets the session machine demand it.
type Verified struct {
	checksum Checksum
	size     int64
	path     string
}

func (v Verified) Checksum() Checksum { return v.checksum }
func (v Verified) Size() int64        { return v.size }
func (v Verified) Path() string       { return v.path }
func (v Verified) IsZero() bool       { return v.checksum.IsZero() }

// Verifier computes and checks artifact digests.
type Verifier struct {
	logger     *slog.Logger
	bufferSize int
}

type Option func(*Verifier)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithBufferSize(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.bufferSize = n
		}
	}
}

func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		logger:     slog.Default(),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyFile hashes the whole file at path and compares it to expected.
// Any outcome other than success removes the file: a mismatch, a read failure
// and a cancelled context all leave nothing unverified on disk.
func (v *Verifier) VerifyFile(ctx context.Context, path string, expected Checksum) (Verified, error) {
	got, size, err := v.hashFile(ctx, path)
	if err != nil {
		v.discard(ctx, path, "hash_failed")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Verified{}, dErrors.Wrap(err, dErrors.CodeCancelled, "artifact verification cancelled")
		}
		return Verified{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash artifact")
	}

	if subtle.ConstantTimeCompare(got[:], expected[:]) != 1 {
		v.discard(ctx, path, "checksum_mismatch")
		v.logger.WarnContext(ctx, "artifact checksum mismatch",
			"expected", expected.String(),
			"actual", got.String(),
			"size", size,
		)
		return Verified{}, dErrors.New(dErrors.CodeChecksumMismatch, "artifact checksum does not match issued checksum")
	}

	return Verified{checksum: got, size: size, path: path}, nil
}

// VerifyBytes checks an in-memory artifact. On mismatch b is zeroed.
func (v *Verifier) VerifyBytes(b []byte, expected Checksum) (Verified, error) {
	got := Sum(b)
	if subtle.ConstantTimeCompare(got[:], expected[:]) != 1 {
		clear(b)
		return Verified{}, dErrors.New(dErrors.CodeChecksumMismatch, "artifact checksum does not match issued checksum")
	}
	return Verified{checksum: got, size: int64(len(b))}, nil
}

func (v *Verifier) hashFile(ctx context.Context, path string) (Checksum, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Checksum{}, 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.CopyBuffer(h, &ctxReader{ctx: ctx, r: f}, make([]byte, v.bufferSize))
	if err != nil {
		return Checksum{}, n, err
	}
	var c Checksum
	copy(c[:], h.Sum(nil))
	return c, n, nil
}

func (v *Verifier) discard(ctx context.Context, path, reason string) {
	if err := SecureDelete(path); err != nil {
		v.logger.ErrorContext(ctx, "failed to delete rejected artifact",
			"reason", reason,
			"error", err,
		)
	}
}

// ctxReader stops a long hash when the caller gives up (user exit before the
// session is active).
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
