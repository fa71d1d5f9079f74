package identity

import (
	"hash"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"

	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/metrics"
)

// Algorithm names the variable-output hash behind an identity.
type Algorithm string

const (
	Blake2b Algorithm = "blake2b"
	Blake3  Algorithm = "blake3"
)

// chunkSize bounds the memory used while streaming a file into the hash.
const chunkSize = 64 * 1024

// DefaultDomain separates feedme identities from any other use of the same
// hash over the same content.
var DefaultDomain = []byte{
	0x85, 0xCA, 0x8F, 0x3A, 0x6A, 0xB5, 0x4F, 0x93,
	0xA0, 0xAF, 0x99, 0x8E, 0xFE, 0x51, 0xC1, 0x55,
}

// Builder computes identities. The zero value is not usable, use NewBuilder.
type Builder struct {
	domain    []byte
	context   []byte
	algorithm Algorithm
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

type Option func(*Builder)

// WithDomain replaces DefaultDomain.
func WithDomain(domain []byte) Option {
	return func(b *Builder) { b.domain = domain }
}

// WithContext sets caller specific bytes, e.g. an external ID of the source.
func WithContext(context []byte) Option {
	return func(b *Builder) { b.context = context }
}

// WithAlgorithm selects the hash. An empty algorithm keeps the default.
func WithAlgorithm(algorithm Algorithm) Option {
	return func(b *Builder) {
		if algorithm != "" {
			b.algorithm = algorithm
		}
	}
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = mx }
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		domain:    DefaultDomain,
		algorithm: Blake2b,
		metrics:   metrics.NoMetrics(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Finalize computes the identity of the file at path.
func (b *Builder) Finalize(path string) (Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return Identity{}, errs.Wrap(errs.IO, err, "cannot open %s", path)
	}
	defer func() {
		if err := f.Close(); err != nil {
			b.logger.Warn("Cannot close file", zap.String("path", path), zap.Error(err))
		}
	}()

	stop := b.metrics.Record("hash")
	defer func() { _ = stop() }()

	b.logger.Debug("Computing identity", zap.String("path", path), zap.String("algorithm", string(b.algorithm)))

	id, err := b.Sum(f)
	if err != nil {
		return Identity{}, errs.Wrap(errs.KindOf(err), err, "cannot hash %s", path)
	}
	return id, nil
}

// Sum computes the identity of everything read from r.
func (b *Builder) Sum(r io.Reader) (Identity, error) {
	h, err := newHash(b.algorithm, Size)
	if err != nil {
		return Identity{}, err
	}

	h.Write(b.domain)
	h.Write(b.context)

	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return Identity{}, errs.Wrap(errs.IO, err, "cannot read content")
	}

	var id Identity
	copy(id[:], h.Sum(nil))
	return id, nil
}

func newHash(algorithm Algorithm, size int) (hash.Hash, error) {
	switch algorithm {
	case Blake2b:
		h, err := blake2b.New(size, nil)
		if err != nil {
			return nil, errs.Wrap(errs.HashConfig, err, "invalid output size %d", size)
		}
		return h, nil
	case Blake3:
		if size < 1 {
			return nil, errs.New(errs.HashConfig, "invalid output size %d", size)
		}
		return blake3.New(size, nil), nil
	default:
		return nil, errs.New(errs.HashConfig, "unknown hash algorithm %q", algorithm)
	}
}

// ParseAlgorithm validates an algorithm name, "" selects the default.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "":
		return Blake2b, nil
	case Blake2b, Blake3:
		return Algorithm(name), nil
	default:
		return "", errs.New(errs.HashConfig, "unknown hash algorithm %q", name)
	}
}
