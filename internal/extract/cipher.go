package extract

import (
	"encoding/base64"
	"math/big"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// The embed host encrypts its source list with three layers over the
// printable ASCII alphabet. Each layer is a seeded shift, a columnar
// transposition and a seeded substitution.
const (
	alphabetStart = 32
	alphabetSize  = 95
	cipherLayers  = 3
)

// lcg is the linear congruential generator the host seeds its shuffles with.
type lcg uint64

func newLCG(key string) *lcg {
	var h uint64
	for i := 0; i < len(key); i++ {
		h = (h*31 + uint64(key[i])) & 0xffffffff
	}
	l := lcg(h)
	return &l
}

func (l *lcg) next(n int) int {
	*l = (*l*1103515245 + 12345) & 0x7fffffff
	return int(uint64(*l) % uint64(n))
}

func printable(c byte) bool {
	return c >= alphabetStart && c < alphabetStart+alphabetSize
}

// decryptSources returns the plaintext source list, or "" when src does not
// decrypt to a length-prefixed payload.
func decryptSources(src, clientKey, megaKey string) string {
	key := deriveKey(megaKey, clientKey)
	if key == "" {
		return ""
	}

	data := decodeBase64(src)
	for layer := cipherLayers; layer > 0; layer-- {
		data = unwrapLayer(data, key+strconv.Itoa(layer))
	}

	// The first four characters carry the payload length.
	if len(data) < 4 {
		return ""
	}
	n, err := strconv.Atoi(string(data[:4]))
	if err != nil || n < 0 || 4+n > len(data) {
		return ""
	}
	return string(data[4 : 4+n])
}

func unwrapLayer(data []byte, layerKey string) []byte {
	rng := newLCG(layerKey)
	shifted := make([]byte, len(data))
	for i, c := range data {
		if !printable(c) {
			shifted[i] = c
			continue
		}
		idx := int(c-alphabetStart) - rng.next(alphabetSize) + alphabetSize
		shifted[i] = byte(alphabetStart + idx%alphabetSize)
	}

	out := transpose(shifted, layerKey)

	var inverse [alphabetSize]byte
	for i, c := range shuffledAlphabet(layerKey) {
		inverse[c-alphabetStart] = byte(alphabetStart + i)
	}
	for i, c := range out {
		if printable(c) {
			out[i] = inverse[c-alphabetStart]
		}
	}
	return out
}

// shuffledAlphabet is a Fisher-Yates shuffle of the alphabet seeded by key.
func shuffledAlphabet(key string) []byte {
	perm := make([]byte, alphabetSize)
	for i := range perm {
		perm[i] = byte(alphabetStart + i)
	}
	rng := newLCG(key)
	for i := len(perm) - 1; i > 0; i-- {
		j := rng.next(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// transpose writes src column by column, visiting columns in the order of
// the key's characters, then reads the grid row by row. The grid is padded
// with spaces, so the output length is a multiple of len(key).
func transpose(src []byte, key string) []byte {
	cols := len(key)
	if cols == 0 {
		return slices.Clone(src)
	}
	rows := (len(src) + cols - 1) / cols

	grid := make([]byte, rows*cols)
	for i := range grid {
		grid[i] = ' '
	}

	order := make([]int, cols)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return key[order[a]] < key[order[b]] })

	pos := 0
	for _, col := range order {
		for row := 0; row < rows && pos < len(src); row++ {
			grid[row*cols+col] = src[pos]
			pos++
		}
	}
	return grid
}

// deriveKey mixes the published host key with the page's client key.
func deriveKey(megaKey, clientKey string) string {
	const (
		xorMask = 247
		shift   = 5
	)

	combined := []byte(megaKey + clientKey)
	if len(combined) == 0 {
		return ""
	}

	// h = c + 158h, reduced modulo 2^63-1.
	mod := new(big.Int).SetUint64(0x7fffffffffffffff)
	factor := big.NewInt(158)
	h := new(big.Int)
	for _, c := range combined {
		h.Mul(h, factor)
		h.Add(h, big.NewInt(int64(c)))
		h.Mod(h, mod)
	}
	hash := h.Int64()

	for i := range combined {
		combined[i] ^= xorMask
	}
	pivot := int(hash%int64(len(combined))) + shift
	pivot %= len(combined)
	rotated := append(slices.Clone(combined[pivot:]), combined[:pivot]...)

	leaf := []byte(clientKey)
	slices.Reverse(leaf)
	mixed := make([]byte, 0, len(rotated)+len(leaf))
	for i := 0; i < max(len(rotated), len(leaf)); i++ {
		if i < len(rotated) {
			mixed = append(mixed, rotated[i])
		}
		if i < len(leaf) {
			mixed = append(mixed, leaf[i])
		}
	}

	limit := min(96+int(hash%33), len(mixed))
	mixed = mixed[:limit]
	for i, c := range mixed {
		mixed[i] = byte(int(c)%alphabetSize + alphabetStart)
	}
	return string(mixed)
}

// decodeBase64 decodes like a browser's atob: whitespace and padding are
// ignored. Undecodable input yields nil.
func decodeBase64(s string) []byte {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t', '=':
			return -1
		}
		return r
	}, s)
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
