package integrity

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "docguard/pkg/domain-errors"
)

// VerifierSuite covers the checksum gate: only matching artifacts produce a
// Verified, and anything else is removed from disk.
type VerifierSuite struct {
	suite.Suite
	dir      string
	verifier *Verifier
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.verifier = NewVerifier(WithBufferSize(512))
}

func (s *VerifierSuite) writeArtifact(content []byte) string {
	path := filepath.Join(s.dir, "artifact.pdf")
	s.Require().NoError(os.WriteFile(path, content, 0o600))
	return path
}

func (s *VerifierSuite) randomContent(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	s.Require().NoError(err)
	return b
}

func (s *VerifierSuite) TestMatchingArtifactIsVerified() {
	content := s.randomContent(4096)
	path := s.writeArtifact(content)

	verified, err := s.verifier.VerifyFile(context.Background(), path, Sum(content))
	s.Require().NoError(err)
	s.Equal(Sum(content), verified.Checksum())
	s.Equal(int64(len(content)), verified.Size())
	s.Equal(path, verified.Path())
	s.False(verified.IsZero())
	s.FileExists(path)
}

func (s *VerifierSuite) TestSingleBitFlipIsRejectedAndDeleted() {
	content := s.randomContent(4096)
	expected := Sum(content)

	for _, bit := range []int{0, 7, 2049 * 8, len(content)*8 - 1} {
		s.Run("bit "+strconv.Itoa(bit), func() {
			corrupted := append([]byte(nil), content...)
			corrupted[bit/8] ^= 1 << (bit % 8)
			path := s.writeArtifact(corrupted)

			verified, err := s.verifier.VerifyFile(context.Background(), path, expected)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeChecksumMismatch))
			s.True(verified.IsZero())
			s.NoFileExists(path)
		})
	}
}

func (s *VerifierSuite) TestCancelledVerificationDeletesArtifact() {
	content := s.randomContent(8192)
	path := s.writeArtifact(content)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.verifier.VerifyFile(ctx, path, Sum(content))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCancelled))
	s.NoFileExists(path)
}

func (s *VerifierSuite) TestMissingArtifactIsInternalError() {
	_, err := s.verifier.VerifyFile(context.Background(), filepath.Join(s.dir, "missing.pdf"), Checksum{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *VerifierSuite) TestVerifyBytes() {
	s.Run("match", func() {
		content := []byte("%PDF-1.7 body")
		verified, err := s.verifier.VerifyBytes(content, Sum(content))
		s.Require().NoError(err)
		s.Equal(int64(len(content)), verified.Size())
	})

	s.Run("mismatch zeroes the buffer", func() {
		content := []byte("%PDF-1.7 body")
		expected := Sum([]byte("%PDF-1.7 other"))
		_, err := s.verifier.VerifyBytes(content, expected)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeChecksumMismatch))
		s.Equal(make([]byte, len(content)), content)
	})
}

func (s *VerifierSuite) TestParseChecksum() {
	content := []byte("hello")
	sum := Sum(content)

	s.Run("round trips lowercase and uppercase hex", func() {
		parsed, err := ParseChecksum(sum.String())
		s.Require().NoError(err)
		s.Equal(sum, parsed)

		parsed, err = ParseChecksum(strings.ToUpper(sum.String()))
		s.Require().NoError(err)
		s.Equal(sum, parsed)
	})

	s.Run("rejects wrong length", func() {
		_, err := ParseChecksum(sum.String()[:63])
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects non-hex", func() {
		_, err := ParseChecksum(strings.Repeat("z", 64))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
