package embed

import (
	"bufio"
	"embed"
	"strings"
	"unicode"
)

//go:embed vocab.txt
var vocabFS embed.FS

const (
	tokenCLS     = "[CLS]"
	tokenSEP     = "[SEP]"
	tokenPAD     = "[PAD]"
	tokenUNK     = "[UNK]"
	maxWordChars = 200
)

// Tokenizer implements basic tokenization followed by greedy-longest-prefix
// WordPiece subword tokenization, against a vocabulary loaded once from the
// embedded vocab.txt asset.
type Tokenizer struct {
	vocab map[string]int64
	clsID int64
	sepID int64
	padID int64
	unkID int64
}

// NewTokenizer loads the embedded vocabulary.
func NewTokenizer() (*Tokenizer, error) {
	f, err := vocabFS.Open("vocab.txt")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		vocab[line] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	t := &Tokenizer{vocab: vocab}
	t.clsID = t.lookupOrZero(tokenCLS)
	t.sepID = t.lookupOrZero(tokenSEP)
	t.padID = t.lookupOrZero(tokenPAD)
	t.unkID = t.lookupOrZero(tokenUNK)
	return t, nil
}

func (t *Tokenizer) lookupOrZero(tok string) int64 {
	if id, ok := t.vocab[tok]; ok {
		return id
	}
	return 0
}

// Encoded holds the three parallel arrays the local embedder feeds to
// inference: input_ids, attention_mask, token_type_ids, each length L.
type Encoded struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Encode runs basic tokenization, WordPiece subword splitting, and
// [CLS]/[SEP]/[PAD] encoding to length seqLen.
func (t *Tokenizer) Encode(text string, seqLen int) Encoded {
	words := basicTokenize(text)

	var subwords []string
	for _, w := range words {
		subwords = append(subwords, t.wordPiece(w)...)
	}

	maxSubwords := seqLen - 2
	if len(subwords) > maxSubwords {
		subwords = subwords[:maxSubwords]
	}

	ids := make([]int64, 0, seqLen)
	ids = append(ids, t.clsID)
	for _, sw := range subwords {
		ids = append(ids, t.lookupOrUNK(sw))
	}
	ids = append(ids, t.sepID)

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}

	for len(ids) < seqLen {
		ids = append(ids, t.padID)
		mask = append(mask, 0)
	}

	return Encoded{
		InputIDs:      ids,
		AttentionMask: mask,
		TokenTypeIDs:  make([]int64, seqLen),
	}
}

func (t *Tokenizer) lookupOrUNK(sw string) int64 {
	if id, ok := t.vocab[sw]; ok {
		return id
	}
	return t.unkID
}

// wordPiece greedily takes the longest vocabulary-matching prefix starting
// at position 0, prefixing subsequent sub-tokens with "##". A word that
// cannot be fully segmented, or exceeds maxWordChars, becomes a single
// [UNK].
func (t *Tokenizer) wordPiece(word string) []string {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []string{tokenUNK}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		var matched string
		for end > start {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if _, ok := t.vocab[candidate]; ok {
				matched = candidate
				break
			}
			end--
		}
		if matched == "" {
			return []string{tokenUNK}
		}
		pieces = append(pieces, matched)
		start = end
	}
	return pieces
}

// basicTokenize lowercases, inserts spaces around punctuation/symbol
// characters, and splits on whitespace.
func basicTokenize(text string) []string {
	text = strings.ToLower(text)

	var b strings.Builder
	for _, r := range text {
		if isPunctOrSymbol(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	return strings.Fields(b.String())
}

func isPunctOrSymbol(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
