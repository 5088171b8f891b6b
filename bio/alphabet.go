package bio

import (
	"fmt"
	"strings"
)

// Sentinel codes shared by all alphabets. Letters are codes
// 0..Size()-1, letter classes (ambiguity codes) follow the letters.
const (
	// Gap marks a deleted position.
	Gap = -1
	// NotGap marks a position which is present but whose state is
	// unknown (used for internal tree nodes).
	NotGap = -2
	// Unknown marks completely missing data.
	Unknown = -3
)

// letterClass is an ambiguity code expanding to a set of letters.
type letterClass struct {
	name    string
	letters []int
}

// Alphabet is a finite ordered set of letters plus ambiguity classes.
type Alphabet struct {
	name       string
	letters    []string
	classes    []letterClass
	complement []int
	index      map[string]int
}

func newAlphabet(name string, letters []string) *Alphabet {
	a := &Alphabet{
		name:    name,
		letters: letters,
		index:   make(map[string]int, len(letters)),
	}
	for i, l := range letters {
		a.index[l] = i
	}
	return a
}

func (a *Alphabet) addClass(name string, letters ...string) {
	ls := make([]int, len(letters))
	for i, l := range letters {
		ls[i] = a.index[l]
	}
	a.index[name] = a.Size() + len(a.classes)
	a.classes = append(a.classes, letterClass{name, ls})
}

// Name returns the alphabet name.
func (a *Alphabet) Name() string { return a.name }

// Size returns the number of letters (classes excluded).
func (a *Alphabet) Size() int { return len(a.letters) }

// NClasses returns the number of ambiguity classes.
func (a *Alphabet) NClasses() int { return len(a.classes) }

// IsLetter tests if the code is a plain letter.
func (a *Alphabet) IsLetter(c int) bool {
	return c >= 0 && c < a.Size()
}

// IsLetterClass tests if the code is an ambiguity class.
func (a *Alphabet) IsLetterClass(c int) bool {
	return c >= a.Size() && c < a.Size()+a.NClasses()
}

// IsFeature tests if the code occupies a column: a letter, a class or
// NotGap. Gap and Unknown are not features.
func IsFeature(c int) bool {
	return c >= 0 || c == NotGap
}

// Expand returns the set of letters a code may stand for. Classes
// expand to their members; NotGap and Unknown expand to every letter.
func (a *Alphabet) Expand(c int) []int {
	switch {
	case a.IsLetter(c):
		return []int{c}
	case a.IsLetterClass(c):
		return a.classes[c-a.Size()].letters
	}
	all := make([]int, a.Size())
	for i := range all {
		all[i] = i
	}
	return all
}

// Find returns the code for a letter or class string.
func (a *Alphabet) Find(s string) (int, error) {
	c, ok := a.index[strings.ToUpper(s)]
	if !ok {
		return 0, fmt.Errorf("letter %q not in alphabet %s", s, a.name)
	}
	return c, nil
}

// Letter returns the string for a code; gaps and sentinels get their
// conventional characters.
func (a *Alphabet) Letter(c int) string {
	switch {
	case a.IsLetter(c):
		return a.letters[c]
	case a.IsLetterClass(c):
		return a.classes[c-a.Size()].name
	case c == Gap:
		return "-"
	case c == NotGap:
		return "*"
	}
	return "?"
}

// Complement returns the complement code on nucleotide alphabets; on
// other alphabets the code is returned unchanged.
func (a *Alphabet) Complement(c int) int {
	if a.complement == nil || !a.IsLetter(c) {
		return c
	}
	return a.complement[c]
}

// Encode converts a sequence string to letter codes. '-' becomes Gap,
// '?' Unknown, '*' NotGap.
func (a *Alphabet) Encode(seq string) ([]int, error) {
	res := make([]int, 0, len(seq))
	for _, r := range strings.ToUpper(seq) {
		switch r {
		case '-':
			res = append(res, Gap)
		case '?':
			res = append(res, Unknown)
		case '*':
			res = append(res, NotGap)
		default:
			c, err := a.Find(string(r))
			if err != nil {
				return nil, err
			}
			res = append(res, c)
		}
	}
	return res, nil
}

// Decode converts letter codes back to a string.
func (a *Alphabet) Decode(codes []int) string {
	var b strings.Builder
	for _, c := range codes {
		b.WriteString(a.Letter(c))
	}
	return b.String()
}

// DNA returns the DNA alphabet with IUPAC ambiguity classes.
func DNA() *Alphabet {
	a := newAlphabet("DNA", []string{"A", "C", "G", "T"})
	a.complement = []int{3, 2, 1, 0}
	addNucClasses(a, "T")
	return a
}

// RNA returns the RNA alphabet.
func RNA() *Alphabet {
	a := newAlphabet("RNA", []string{"A", "C", "G", "U"})
	a.complement = []int{3, 2, 1, 0}
	addNucClasses(a, "U")
	return a
}

func addNucClasses(a *Alphabet, t string) {
	a.addClass("R", "A", "G")
	a.addClass("Y", "C", t)
	a.addClass("W", "A", t)
	a.addClass("S", "C", "G")
	a.addClass("K", "G", t)
	a.addClass("M", "A", "C")
	a.addClass("B", "C", "G", t)
	a.addClass("D", "A", "G", t)
	a.addClass("H", "A", "C", t)
	a.addClass("V", "A", "C", "G")
	a.addClass("N", "A", "C", "G", t)
}

// AminoAcids returns the 20-letter protein alphabet.
func AminoAcids() *Alphabet {
	a := newAlphabet("Amino-Acids", []string{
		"A", "R", "N", "D", "C", "Q", "E", "G", "H", "I",
		"L", "K", "M", "F", "P", "S", "T", "W", "Y", "V"})
	a.addClass("B", "N", "D")
	a.addClass("Z", "Q", "E")
	a.addClass("X", "A", "R", "N", "D", "C", "Q", "E", "G", "H", "I",
		"L", "K", "M", "F", "P", "S", "T", "W", "Y", "V")
	return a
}

// CompositeAlphabet is an alphabet whose letters are tuples over a
// nucleotide alphabet (codons and triplets).
type CompositeAlphabet struct {
	*Alphabet
	nuc *Alphabet
	// amino acid letter per codon, stop codons excluded for the
	// codon alphabet
	aa []byte
}

// Nucleotides returns the underlying nucleotide alphabet.
func (c *CompositeAlphabet) Nucleotides() *Alphabet { return c.nuc }

// AminoAcid returns the amino acid (single letter) coded by letter i.
func (c *CompositeAlphabet) AminoAcid(i int) byte { return c.aa[i] }

// SplitNuc returns the three nucleotide codes of letter i.
func (c *CompositeAlphabet) SplitNuc(i int) [3]int {
	s := c.letters[i]
	var r [3]int
	for k := 0; k < 3; k++ {
		r[k], _ = c.nuc.Find(string(s[k]))
	}
	return r
}

// Codons returns the 61-letter sense-codon alphabet for the standard
// genetic code.
func Codons() *CompositeAlphabet {
	nuc := DNA()
	var letters []string
	var aa []byte
	for _, c := range sortedCodons() {
		if IsStopCodon(c) {
			continue
		}
		letters = append(letters, c)
		aa = append(aa, GeneticCode[c])
	}
	return &CompositeAlphabet{
		Alphabet: newAlphabet("Codons", letters),
		nuc:      nuc,
		aa:       aa,
	}
}

// Triplets returns the full 64-letter triplet alphabet.
func Triplets() *CompositeAlphabet {
	nuc := DNA()
	letters := sortedCodons()
	aa := make([]byte, len(letters))
	for i, c := range letters {
		aa[i] = GeneticCode[c]
	}
	return &CompositeAlphabet{
		Alphabet: newAlphabet("Triplets", letters),
		nuc:      nuc,
		aa:       aa,
	}
}

func sortedCodons() []string {
	nucs := "ACGT"
	res := make([]string, 0, 64)
	for _, a := range nucs {
		for _, b := range nucs {
			for _, c := range nucs {
				res = append(res, string(a)+string(b)+string(c))
			}
		}
	}
	return res
}
