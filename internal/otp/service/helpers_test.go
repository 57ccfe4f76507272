package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	"github.com/aussiebroadwan/otpgate/internal/otp/store/drivers/memory"
	"github.com/aussiebroadwan/otpgate/pkg/clock"
	"github.com/aussiebroadwan/otpgate/pkg/cryptox"
	"github.com/aussiebroadwan/otpgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0).UTC()

// captureDeliverer plays the out-of-band channel and remembers what it sent.
type captureDeliverer struct {
	mu    sync.Mutex
	codes []string
}

func (d *captureDeliverer) Deliver(_ context.Context, _ string, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes = append(d.codes, code)
	return nil
}

func (d *captureDeliverer) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.codes) == 0 {
		return ""
	}
	return d.codes[len(d.codes)-1]
}

func (d *captureDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.codes)
}

type failingDeliverer struct{}

func (failingDeliverer) Deliver(context.Context, string, string) error {
	return errors.New("smtp relay down")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

// scriptedRandom yields bytes that make the issuer produce exactly the given
// codes, in order, then falls back to crypto/rand.
func scriptedRandom(codes ...string) io.Reader {
	var buf bytes.Buffer
	for _, code := range codes {
		for i := range len(code) {
			buf.WriteByte(code[i] - '0')
		}
		buf.Write([]byte{0, 0}) // the generator over-reads by two bytes
		buf.Write(bytes.Repeat([]byte{7}, DefaultSaltSize))
	}
	return io.MultiReader(&buf, rand.Reader)
}

// countingIssuer records how many hash comparisons were made.
type countingIssuer struct {
	CredentialIssuer
	verifies int
}

func (c *countingIssuer) Verify(cred domain.Credential, guess string) bool {
	c.verifies++
	return c.CredentialIssuer.Verify(cred, guess)
}

type fixture struct {
	verifier  *Verifier
	issuer    *countingIssuer
	clock     *clock.Fake
	deliverer *captureDeliverer
	store     *memory.Store
}

func newFixture(t *testing.T, policy Policy, random io.Reader) *fixture {
	t.Helper()

	hasher, err := cryptox.NewHasher(cryptox.AlgorithmSHA256)
	require.NoError(t, err)

	clk := clock.NewFake(t0)
	deliverer := &captureDeliverer{}
	st := memory.NewStore()

	issuer := &countingIssuer{CredentialIssuer: &Issuer{
		Length:    6,
		SaltSize:  DefaultSaltSize,
		Hasher:    hasher,
		Deliverer: deliverer,
		Clock:     clk,
		Random:    random,
	}}

	return &fixture{
		verifier: &Verifier{
			Issuer: issuer,
			Store:  st,
			Clock:  clk,
			Policy: policy,
			Logger: slogx.Discard(),
		},
		issuer:    issuer,
		clock:     clk,
		deliverer: deliverer,
		store:     st,
	}
}

// at moves the fixture clock to t0 plus the given number of seconds.
func (f *fixture) at(seconds float64) {
	f.clock.Set(t0.Add(time.Duration(seconds * float64(time.Second))))
}

// step is one scripted line of terminal input, read after advancing the clock.
type step struct {
	advance time.Duration
	line    string
}

type scriptedTerminal struct {
	clock   *clock.Fake
	steps   []step
	prompts []string
	output  []string
}

func (s *scriptedTerminal) ReadLine(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.steps) == 0 {
		return "", io.EOF
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	s.clock.Advance(next.advance)
	return next.line, nil
}

func (s *scriptedTerminal) Println(msg string) error {
	s.output = append(s.output, msg)
	return nil
}

func (s *scriptedTerminal) String() string {
	return fmt.Sprintf("prompts=%q output=%q", s.prompts, s.output)
}
