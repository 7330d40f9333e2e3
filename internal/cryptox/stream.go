package cryptox

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
	"golang.org/x/crypto/hkdf"
)

// Blob layout:
//
//	magic "FVLT" | version (1) | salt (32) | nonce prefix (7) | chunk...
//
// Every chunk is AES-256-GCM over at most ChunkSize bytes of plaintext. The
// nonce of chunk i is prefix | uint32(i) | lastFlag, and the whole header is
// passed as additional data, so reordering, truncation and header edits are
// all detected by Open.
const (
	ChunkSize = 64 * 1024

	blobMagic      = "FVLT"
	blobVersion    = 1
	blobSaltSize   = 32
	noncePrefixLen = 7
	headerSize     = len(blobMagic) + 1 + blobSaltSize + noncePrefixLen
	blobKeyInfo    = "filevault:blob:v1"
)

// FileCipher encrypts and decrypts whole files under one data key. Each blob
// gets its own subkey derived with HKDF from the data key and a random salt
// kept in the blob header.
type FileCipher struct {
	key []byte
}

// NewFileCipher copies key, which must be KeySize bytes long.
func NewFileCipher(key []byte) (*FileCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d, want %d", len(key), KeySize)
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &FileCipher{key: k}, nil
}

// Close wipes the key held by the cipher.
func (c *FileCipher) Close() {
	Wipe(c.key)
}

func (c *FileCipher) aead(salt []byte) (cipher.AEAD, error) {
	subkey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.key, salt, []byte(blobKeyInfo)), subkey); err != nil {
		return nil, fmt.Errorf("derive blob key: %w", err)
	}
	defer Wipe(subkey)

	block, err := aes.NewCipher(subkey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func chunkNonce(prefix []byte, counter uint32, last bool) []byte {
	nonce := make([]byte, noncePrefixLen+5)
	copy(nonce, prefix)
	binary.BigEndian.PutUint32(nonce[noncePrefixLen:], counter)
	if last {
		nonce[len(nonce)-1] = 1
	}
	return nonce
}

// readChunk fills buf from r and reports whether this was the final chunk
// of the stream. io.EOF is returned only when r had nothing left at all.
func readChunk(r *bufio.Reader, buf []byte) (int, bool, error) {
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF):
		return 0, true, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	case err != nil:
		return n, false, err
	}
	if _, err := r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return n, true, nil
		}
		return n, false, err
	}
	return n, false, nil
}

// Encrypt reads plaintext from src until EOF and writes a blob to dst.
func (c *FileCipher) Encrypt(dst io.Writer, src io.Reader) error {
	header := make([]byte, headerSize)
	copy(header, blobMagic)
	header[len(blobMagic)] = blobVersion
	random, err := RandBytes(blobSaltSize + noncePrefixLen)
	if err != nil {
		return err
	}
	copy(header[len(blobMagic)+1:], random)
	salt := header[len(blobMagic)+1 : len(blobMagic)+1+blobSaltSize]
	prefix := header[headerSize-noncePrefixLen:]

	aead, err := c.aead(salt)
	if err != nil {
		return err
	}
	if _, err := dst.Write(header); err != nil {
		return err
	}

	br := bufio.NewReaderSize(src, ChunkSize)
	buf := make([]byte, ChunkSize)
	out := make([]byte, 0, ChunkSize+aead.Overhead())

	for counter := uint32(0); ; counter++ {
		n, last, err := readChunk(br, buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read plaintext: %w", err)
		}
		out = aead.Seal(out[:0], chunkNonce(prefix, counter, last), buf[:n], header)
		if _, err := dst.Write(out); err != nil {
			return err
		}
		if last {
			return nil
		}
		if counter == ^uint32(0) {
			return errors.New("plaintext too large")
		}
	}
}

// Decrypt reads a blob from src and writes the plaintext to dst. Any failure
// other than a write to dst is reported as ErrDecryptionFailed. Chunks are
// only written after they authenticate, but a caller that needs all-or-nothing
// output must discard dst on error; DecryptFile does that.
func (c *FileCipher) Decrypt(dst io.Writer, src io.Reader) error {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrDecryptionFailed, err)
	}
	if !bytes.Equal(header[:len(blobMagic)], []byte(blobMagic)) || header[len(blobMagic)] != blobVersion {
		return fmt.Errorf("%w: unknown blob format", ErrDecryptionFailed)
	}
	salt := header[len(blobMagic)+1 : len(blobMagic)+1+blobSaltSize]
	prefix := header[headerSize-noncePrefixLen:]

	aead, err := c.aead(salt)
	if err != nil {
		return err
	}

	br := bufio.NewReaderSize(src, ChunkSize+aead.Overhead())
	buf := make([]byte, ChunkSize+aead.Overhead())

	for counter := uint32(0); ; counter++ {
		n, last, err := readChunk(br, buf)
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: truncated blob", ErrDecryptionFailed)
		}
		if err != nil {
			return fmt.Errorf("%w: read blob: %v", ErrDecryptionFailed, err)
		}
		plain, err := aead.Open(buf[:0], chunkNonce(prefix, counter, last), buf[:n], header)
		if err != nil {
			return fmt.Errorf("%w: chunk %d", ErrDecryptionFailed, counter)
		}
		if _, err := dst.Write(plain); err != nil {
			return err
		}
		if last {
			return nil
		}
	}
}

// EncryptFile writes the blob for srcPath to dstPath. dstPath only appears
// once the whole blob has been written and synced.
func (c *FileCipher) EncryptFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	return writeAtomic(dstPath, func(w io.Writer) error {
		return c.Encrypt(w, src)
	})
}

// DecryptFile restores the plaintext of the blob at srcPath into dstPath.
// On failure dstPath is left untouched, so no partial plaintext is ever
// visible at the destination.
func (c *FileCipher) DecryptFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	defer src.Close()

	return writeAtomic(dstPath, func(w io.Writer) error {
		return c.Decrypt(w, src)
	})
}

var errDestinationClosed = errors.New("destination closed")

// writeAtomic streams produce's output into path through a temp file in the
// same directory. An error from produce wins over the error atomic reports
// for the aborted copy.
func writeAtomic(path string, produce func(w io.Writer) error) error {
	pr, pw := io.Pipe()
	done := make(chan error, 1)

	go func() {
		err := produce(pw)
		done <- err
		_ = pw.CloseWithError(err)
	}()

	writeErr := atomic.WriteFile(path, pr)
	_ = pr.CloseWithError(errDestinationClosed)
	if err := <-done; err != nil && !errors.Is(err, errDestinationClosed) {
		return err
	}
	return writeErr
}
