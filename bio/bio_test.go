package bio

import (
	"strings"
	"testing"
)

func TestTranslate(tst *testing.T) {
	p, err := Translate("ATGAAATAA")
	if err != nil {
		tst.Error("Error translating:", err)
	}
	if p != "MK" {
		tst.Error("Expected MK, got", p)
	}
	_, err = Translate("ATGTAAAAA")
	if err == nil {
		tst.Error("premature stop codon not detected")
	}
}

func TestParseFasta(tst *testing.T) {
	in := ">s1\nACGT\nACGT\n>s2\nTTTT TTTT\n"
	seqs, err := ParseFasta(strings.NewReader(in))
	if err != nil {
		tst.Error("Error parsing fasta:", err)
	}
	if len(seqs) != 2 || seqs[0].Sequence != "ACGTACGT" || seqs[1].Sequence != "TTTTTTTT" {
		tst.Error("wrong fasta parse:", seqs)
	}
}

func TestParsePhylip(tst *testing.T) {
	in := " 2 8\ns1 ACGTACGT\ns2 TTTTTTTT\n"
	seqs, err := ParsePhylip(strings.NewReader(in))
	if err != nil {
		tst.Error("Error parsing phylip:", err)
	}
	if len(seqs) != 2 || seqs[0].Name != "s1" || seqs[1].Sequence != "TTTTTTTT" {
		tst.Error("wrong phylip parse:", seqs)
	}
}

func TestParseSequencesSniff(tst *testing.T) {
	fasta := "\n>s1\nACGT\n"
	seqs, err := ParseSequences(strings.NewReader(fasta))
	if err != nil || len(seqs) != 1 {
		tst.Error("fasta sniffing failed")
	}
	phylip := "1 4\ns1 ACGT\n"
	seqs, err = ParseSequences(strings.NewReader(phylip))
	if err != nil || len(seqs) != 1 {
		tst.Error("phylip sniffing failed")
	}
}

func TestCheckName(tst *testing.T) {
	if err := CheckName("seq_1"); err != nil {
		tst.Error("legal name rejected:", err)
	}
	for _, bad := range []string{"a(b", "a;b", "a,b", `a"b`, "a[b]"} {
		if err := CheckName(bad); err == nil {
			tst.Error("illegal name accepted:", bad)
		}
	}
}

func TestDNAAlphabet(tst *testing.T) {
	a := DNA()
	if a.Size() != 4 {
		tst.Error("DNA size should be 4")
	}
	c, err := a.Find("G")
	if err != nil || !a.IsLetter(c) {
		tst.Error("G should be a letter")
	}
	r, err := a.Find("R")
	if err != nil || !a.IsLetterClass(r) {
		tst.Error("R should be a letter class")
	}
	members := a.Expand(r)
	if len(members) != 2 {
		tst.Error("R should expand to two letters")
	}
	// complement: A <-> T
	at, _ := a.Find("A")
	tt, _ := a.Find("T")
	if a.Complement(at) != tt {
		tst.Error("A should complement T")
	}
	if !IsFeature(NotGap) || IsFeature(Gap) || IsFeature(Unknown) {
		tst.Error("feature predicate broken")
	}
}

func TestEncodeDecode(tst *testing.T) {
	a := DNA()
	codes, err := a.Encode("AC-G?T")
	if err != nil {
		tst.Error("Error encoding:", err)
	}
	if codes[2] != Gap || codes[4] != Unknown {
		tst.Error("sentinels not encoded")
	}
	if a.Decode(codes) != "AC-G?T" {
		tst.Error("decode mismatch:", a.Decode(codes))
	}
}

func TestCodons(tst *testing.T) {
	c := Codons()
	if c.Size() != 61 {
		tst.Error("Expected 61 sense codons, got", c.Size())
	}
	if c.Nucleotides().Size() != 4 {
		tst.Error("codon alphabet should map to nucleotides")
	}
	if c.AminoAcid(0) == '_' {
		tst.Error("stop codon in the sense-codon alphabet")
	}
	tr := Triplets()
	if tr.Size() != 64 {
		tst.Error("Expected 64 triplets, got", tr.Size())
	}
	n := tr.SplitNuc(0)
	if n[0] != 0 || n[1] != 0 || n[2] != 0 {
		tst.Error("AAA should split to A,A,A")
	}
}
