package crypto

import "testing"

func TestGeneratePhraseVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	phrase, err := GeneratePhrase(priv.Bytes())
	if err != nil {
		t.Fatalf("GeneratePhrase: %v", err)
	}
	if err := ValidatePhrase(phrase); err != nil {
		t.Fatalf("ValidatePhrase: %v", err)
	}
	if !VerifyPhrase(phrase, HashPhrase(phrase)) {
		t.Fatal("VerifyPhrase: expected phrase to verify against its own hash")
	}
}

func TestGeneratePhraseDeterministic(t *testing.T) {
	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	a, err := GeneratePhrase(priv.Bytes())
	if err != nil {
		t.Fatalf("GeneratePhrase: %v", err)
	}
	b, err := GeneratePhrase(priv.Bytes())
	if err != nil {
		t.Fatalf("GeneratePhrase: %v", err)
	}
	if a != b {
		t.Fatalf("GeneratePhrase is not deterministic: %q vs %q", a, b)
	}
}

func TestValidatePhraseRejectsWrongWordCount(t *testing.T) {
	if err := ValidatePhrase("abandon ability absorb"); err != ErrMnemonicWordCount {
		t.Fatalf("err = %v, want ErrMnemonicWordCount", err)
	}
}

func TestValidatePhraseRejectsUnknownWord(t *testing.T) {
	words := "abandon ability absorb access acoustic acquire across action actual adapt add notaword"
	if err := ValidatePhrase(words); err != ErrMnemonicUnknownWord {
		t.Fatalf("err = %v, want ErrMnemonicUnknownWord", err)
	}
}

func TestVerifyPhraseRejectsMalformedPhraseWithoutPanicking(t *testing.T) {
	if VerifyPhrase("not a valid phrase at all", HashPhrase("anything")) {
		t.Fatal("VerifyPhrase must reject a malformed phrase")
	}
}

func TestHashPhraseNormalizesCaseAndWhitespace(t *testing.T) {
	a := HashPhraseHex("  Abandon Ability Absorb  ")
	b := HashPhraseHex("abandon ability absorb")
	if a != b {
		t.Fatalf("HashPhraseHex not normalized: %q vs %q", a, b)
	}
}

func TestGeneratePhraseRejectsShortKey(t *testing.T) {
	if _, err := GeneratePhrase([]byte{1, 2, 3}); err != ErrMnemonicKeyTooShort {
		t.Fatalf("err = %v, want ErrMnemonicKeyTooShort", err)
	}
}
