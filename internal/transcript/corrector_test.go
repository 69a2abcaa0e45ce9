package transcript_test

import (
	"testing"

	"github.com/ideaspark/ideaspark/internal/transcript"
)

func TestCorrector_FixesMisheardVocabulary(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(transcript.DomainVocabulary())

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "misheard status",
			in:   "move this to developmint",
			want: "move this to Development",
		},
		{
			name: "misheard multi-word category",
			in:   "make it a side projekt",
			want: "make it a Side Project",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := c.Correct(tc.in); got != tc.want {
				t.Errorf("Correct(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCorrector_LeavesFreeTextAlone(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(transcript.DomainVocabulary())

	cases := []string{
		"add a purple theme",
		"rename it and bump the importance",
		"describe the audience in more detail",
	}
	for _, in := range cases {
		if got := c.Correct(in); got != in {
			t.Errorf("Correct(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestCorrector_DoesNotRecaseExactTerms(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(transcript.DomainVocabulary())

	// Words that already spell a vocabulary term are not touched, in any
	// casing.
	in := "set the status to development"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct(%q) = %q, want unchanged", in, got)
	}
}

func TestCorrector_ExactMultiWordTermIsNotDuplicated(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(transcript.DomainVocabulary())

	// "side project" must be consumed as one window; a narrower pass over
	// "side" alone must not expand it again.
	in := "file it under side project"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct(%q) = %q, want unchanged", in, got)
	}
}

func TestCorrector_FragmentDoesNotExpand(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(transcript.DomainVocabulary())

	// A lone fragment of a multi-word term stays as spoken.
	in := "rename the projekt now"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct(%q) = %q, want unchanged", in, got)
	}
}

func TestCorrector_EmptyInput(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(transcript.DomainVocabulary())
	if got := c.Correct(""); got != "" {
		t.Errorf("Correct(\"\") = %q, want empty", got)
	}
	if got := c.Correct("   "); got != "   " {
		t.Errorf("Correct(blank) = %q, want unchanged", got)
	}
}

func TestCorrector_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil)
	in := "move this to developmint"
	if got := c.Correct(in); got != in {
		t.Errorf("Correct(%q) = %q, want unchanged with empty vocabulary", in, got)
	}
}
