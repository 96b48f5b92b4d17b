package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/examlens/internal/entity"
)

// Line-leading markers. Group 1: "Q3", "Question 4", "Problem 5:". Group 2:
// "1.". Group 3: "2)".
var reQuestion = regexp.MustCompile(`(?i)^[ \t]*(?:(?:question|problem|q)[ \t]*#?[ \t]*(\d{1,3})\b|#?(\d{1,3})\.[ \t]+\S|#?(\d{1,3})\)[ \t]+\S)`)

// DetectQuestions returns the question numbers present in the text as the
// longest run 1..N where every number was seen. Stray numbered lines beyond
// a gap are ignored. Returns nil when question 1 is never seen.
//
// A "1)" line after a "N." or "Question N" line opens a list of answer
// choices; it and the "2)", "3)"... lines that continue it are not questions.
func DetectQuestions(text entity.ExtractedText) []entity.QuestionID {
	seen := make(map[int]struct{})
	var (
		lastQuestion int // last number seen in "N." or "Question N" form
		lastChoice   int // > 0 while inside an answer-choice list
	)
	for _, page := range text.Pages {
		for _, line := range strings.Split(page, "\n") {
			m := reQuestion.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if m[3] != "" {
				n, _ := strconv.Atoi(m[3])
				switch {
				case n == 1 && lastQuestion > 0:
					lastChoice = 1
					continue
				case lastChoice > 0 && n == lastChoice+1:
					lastChoice = n
					continue
				}
				lastChoice = 0
				if n > 0 {
					seen[n] = struct{}{}
				}
				continue
			}
			num := m[1]
			if num == "" {
				num = m[2]
			}
			if n, err := strconv.Atoi(num); err == nil && n > 0 {
				seen[n] = struct{}{}
				lastQuestion = n
				lastChoice = 0
			}
		}
	}
	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var out []entity.QuestionID
	for i, n := range nums {
		if n != i+1 {
			break
		}
		out = append(out, entity.QuestionID(strconv.Itoa(n)))
	}
	return out
}
