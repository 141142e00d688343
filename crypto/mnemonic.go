package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// mnemonicHeaderOffset is the fixed byte offset into the private key's raw
// encoding from which the 12 mnemonic-bearing bytes are taken. The offset is
// pinned here (rather than left to vary between versions, as the system this
// spec distills from once did) precisely because spec §4.1/§9 calls out that
// drift as a fragility to avoid: one derivation, documented, forever.
const mnemonicHeaderOffset = 0

// mnemonicWordCount is the fixed phrase length.
const mnemonicWordCount = 12

var (
	// ErrMnemonicWordCount is returned when a phrase does not contain
	// exactly 12 words.
	ErrMnemonicWordCount = errors.New("crypto: mnemonic must contain exactly 12 words")
	// ErrMnemonicUnknownWord is returned when a phrase contains a word
	// outside the fixed vocabulary.
	ErrMnemonicUnknownWord = errors.New("crypto: mnemonic contains an unknown word")
	// ErrMnemonicKeyTooShort is returned when the private key material is
	// too short to derive 12 bytes at the fixed offset.
	ErrMnemonicKeyTooShort = errors.New("crypto: private key too short for mnemonic derivation")
)

// GeneratePhrase deterministically derives a 12-word mnemonic from private
// key seed material: it takes the 12 bytes starting at mnemonicHeaderOffset
// and maps each byte into the fixed 256-word vocabulary below.
func GeneratePhrase(privateKeyBytes []byte) (string, error) {
	if len(privateKeyBytes) < mnemonicHeaderOffset+mnemonicWordCount {
		return "", ErrMnemonicKeyTooShort
	}
	words := make([]string, mnemonicWordCount)
	for i := 0; i < mnemonicWordCount; i++ {
		b := privateKeyBytes[mnemonicHeaderOffset+i]
		words[i] = mnemonicVocabulary[b]
	}
	return strings.Join(words, " "), nil
}

// HashPhrase returns SHA-256(lowercase(trim(phrase))), the only form a
// mnemonic is ever persisted in (alongside a NODE_JOIN event).
func HashPhrase(phrase string) [32]byte {
	normalized := strings.ToLower(strings.TrimSpace(phrase))
	return sha256.Sum256([]byte(normalized))
}

// HashPhraseHex is the hex-encoded form used in JSON payloads.
func HashPhraseHex(phrase string) string {
	sum := HashPhrase(phrase)
	return hex.EncodeToString(sum[:])
}

// ValidatePhrase rejects a phrase that is not exactly 12 whitespace-separated
// words drawn entirely from the fixed vocabulary, without attempting any
// further import — a malformed phrase never reaches key reconstruction.
func ValidatePhrase(phrase string) error {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(phrase)))
	if len(words) != mnemonicWordCount {
		return ErrMnemonicWordCount
	}
	for _, w := range words {
		if _, ok := mnemonicIndex[w]; !ok {
			return ErrMnemonicUnknownWord
		}
	}
	return nil
}

// VerifyPhrase reports whether phrase hashes to expectedHash, the
// verification-without-disclosure check spec §4.1 requires.
func VerifyPhrase(phrase string, expectedHash [32]byte) bool {
	if ValidatePhrase(phrase) != nil {
		return false
	}
	return HashPhrase(phrase) == expectedHash
}

var mnemonicIndex = func() map[string]byte {
	idx := make(map[string]byte, len(mnemonicVocabulary))
	for i, w := range mnemonicVocabulary {
		idx[w] = byte(i)
	}
	return idx
}()

// mnemonicVocabulary is the fixed 256-word recovery vocabulary. Index i is
// the word a key byte with value i maps to.
var mnemonicVocabulary = [256]string{
	"abandon", "ability", "absorb", "access", "acoustic", "acquire", "across", "action",
	"actual", "adapt", "add", "address", "adjust", "admit", "adult", "advance",
	"advice", "afford", "afraid", "again", "agent", "agree", "ahead", "aim",
	"air", "airport", "aisle", "alarm", "album", "alert", "alien", "all",
	"alley", "allow", "almost", "alone", "alpha", "already", "also", "alter",
	"always", "amateur", "amazing", "among", "amount", "amused", "anchor", "ancient",
	"anger", "angle", "angry", "animal", "ankle", "announce", "annual", "another",
	"answer", "antenna", "antique", "anxiety", "any", "apart", "apology", "appear",
	"apple", "approve", "april", "arch", "arctic", "area", "arena", "argue",
	"arm", "armed", "armor", "army", "around", "arrange", "arrest", "arrive",
	"arrow", "art", "artist", "artwork", "ask", "aspect", "assault", "asset",
	"assist", "assume", "asthma", "athlete", "atom", "attack", "attend", "attitude",
	"attract", "auction", "audit", "august", "aunt", "author", "auto", "autumn",
	"average", "avocado", "avoid", "awake", "aware", "away", "awesome", "awful",
	"awkward", "axis", "baby", "bachelor", "bacon", "badge", "bag", "balance",
	"balcony", "ball", "bamboo", "banana", "banner", "barely", "bargain", "barrel",
	"base", "basic", "basket", "battle", "beach", "bean", "beauty", "because",
	"become", "beef", "before", "begin", "behave", "behind", "believe", "below",
	"belt", "bench", "benefit", "best", "betray", "better", "between", "beyond",
	"bicycle", "bid", "bike", "bind", "biology", "bird", "birth", "bitter",
	"black", "blade", "blame", "blanket", "blast", "bleak", "bless", "blind",
	"blood", "blossom", "blouse", "blue", "blur", "blush", "board", "boat",
	"body", "boil", "bomb", "bone", "bonus", "book", "boost", "border",
	"boring", "borrow", "boss", "bottom", "bounce", "box", "boy", "bracket",
	"brain", "brand", "brass", "brave", "bread", "breeze", "brick", "bridge",
	"brief", "bright", "bring", "brisk", "broccoli", "broken", "bronze", "broom",
	"brother", "brown", "brush", "bubble", "buddy", "budget", "buffalo", "build",
	"bulb", "bulk", "bullet", "bundle", "bunker", "burden", "burger", "burst",
	"bus", "business", "busy", "butter", "buyer", "buzz", "cabin", "cable",
	"cactus", "cage", "cake", "call", "calm", "camera", "camp", "canal",
	"cancel", "candy", "cannon", "canoe", "canvas", "canyon", "capable", "capital",
	"captain", "car", "carbon", "card", "cargo", "carpet", "carry", "cart",
}
