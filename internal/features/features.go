// Package features turns job postings into the normalized text and word sets
// the local scorer matches against.
package features

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/openjobs/jobmatch/internal/jobs"
)

const (
	// MinJobTextLength is the shortest job text worth scoring.
	MinJobTextLength = 50
	minWordLength    = 3
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		les des une dans pour par sur avec est sont qui que quoi dont aux ces cette ses son
		leur leurs nous vous ils elles elle lui mais donc car pas plus moins tout tous toute
		toutes comme être avoir fait faire été votre vos notre nos chez entre sans sous vers
		très bien aussi ainsi afin etc
		the and for with are you your our this that from will have has was were but not all
		can who what which into their they them its any
	`) {
		stopwords[w] = struct{}{}
	}
}

// Words is a duplicate-free word list that remembers first-occurrence order.
type Words struct {
	list []string
	set  map[string]struct{}
}

func NewWords(words ...string) Words {
	w := Words{set: make(map[string]struct{}, len(words))}
	for _, word := range words {
		w.add(word)
	}
	return w
}

func (w *Words) add(word string) {
	if _, ok := w.set[word]; ok {
		return
	}
	w.set[word] = struct{}{}
	w.list = append(w.list, word)
}

func (w Words) Has(word string) bool {
	_, ok := w.set[word]
	return ok
}

func (w Words) Len() int {
	return len(w.list)
}

// Slice returns the words in first-occurrence order. Callers must not modify it.
func (w Words) Slice() []string {
	return w.list
}

// BuildJobText concatenates every string of the job into one lowercase blob.
// The second result is false when the blob is too short to score.
func BuildJobText(job *jobs.Job) (string, bool) {
	if job == nil {
		return "", false
	}

	parts := make([]string, 0, 16)
	for _, s := range job.Strings() {
		s = strings.TrimSpace(StripHTML(s))
		if s != "" {
			parts = append(parts, s)
		}
	}

	text := strings.ToLower(strings.Join(parts, " "))
	return text, utf8.RuneCountInString(text) >= MinJobTextLength
}

// TitleText is the lowercase blob of the title-like fields of job.
func TitleText(job *jobs.Job) string {
	if job == nil {
		return ""
	}
	return strings.ToLower(strings.Join(job.TitleFields(), " "))
}

// ExtractWords lowercases text, splits it on every non-letter rune and keeps
// tokens of at least three letters that are not stopwords.
func ExtractWords(text string) Words {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	words := NewWords()
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minWordLength {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		words.add(tok)
	}
	return words
}

// StripHTML returns the text content of s when it looks like markup.
func StripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}

	// Block elements would otherwise glue adjacent words together.
	doc.Find("br, p, li, div, h1, h2, h3, h4, tr").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// FoldAccents lowercases s and removes diacritics, so "Liège" and "liege"
// compare equal.
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}
