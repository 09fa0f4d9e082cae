package scoring

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/okian/ronbun/internal/domain/model"
)

// Rule thresholds.
const (
	minParagraphs      = 3
	bonusParagraphs    = 4
	minChars           = 100
	maxChars           = 1200
	idealMinChars      = 400
	idealMaxChars      = 800
	themePrefixRunes   = 10
	minConnectors      = 2
	maxRepeats         = 2
	excellentThreshold = 90
	goodThreshold      = 75
	adequateThreshold  = 60
)

// Marker vocabularies.
var (
	introMarkers      = []string{"について", "において", "に関して"}
	conclusionMarkers = []string{"よって", "従って", "以上", "このように"}
	exampleMarkers    = []string{"例えば", "具体的に", "たとえば"}
	counterMarkers    = []string{"一方", "しかし", "ただし", "もっとも"}
	logicalConnectors = []string{"そのため", "なぜなら", "理由は", "その結果", "このことから"}
)

var (
	dataPattern = regexp.MustCompile(`\d+%|\d+人|\d+件|\d+年`)
	// At least 50 non-period characters closed by a full stop. Runs may cross line breaks.
	longSentencePattern = regexp.MustCompile(`[^。]{50,}。`)
	// Go's regexp has no backreferences; regexp2 does.
	repeatPattern = regexp2.MustCompile(`(.{10,})\1`, regexp2.None)
)

// Messages shown to the writer.
const (
	msgEmptyFeedback   = "内容が入力されていません。"
	msgEmptySuggestion = "小論文の本文を入力してください。"

	msgTooShort           = "文字数が不足しています。より詳細な論述が必要です。"
	msgTooShortSuggestion = "具体例や根拠を追加して、論述を充実させてください。"
	msgTooLong            = "文字数が多すぎます。要点を絞って簡潔に論述してください。"
	msgTooLongSuggestion  = "重要なポイントに焦点を当て、冗長な表現を削除してください。"

	msgParagraphsOK         = "適切な段落構成が確認できます。"
	msgParagraphsWeak       = "段落構成を改善する必要があります。序論・本論・結論の構成を意識してください。"
	msgParagraphsSuggestion = "序論で問題提起、本論で論証、結論でまとめという構成を心がけてください。"
	msgIntroSuggestion      = "序論で明確な問題提起を行ってください。"
	msgConclusionSuggestion = "結論部分で自分の主張を明確にまとめてください。"

	msgExamplesOK         = "具体例が適切に使用されています。"
	msgExamplesSuggestion = "具体例を挙げて論証を強化してください。"
	msgDataOK             = "データや数値を用いた客観的な論証が見られます。"
	msgDataSuggestion     = "可能であれば、統計データや数値を用いて論証を補強してください。"

	msgCounterOK           = "反対意見への言及が見られ、多角的な視点が示されています。"
	msgCounterSuggestion   = "反対意見にも触れ、より多角的な論述を心がけてください。"
	msgConnectorsOK        = "論理的な接続詞が適切に使用されています。"
	msgConnectorSuggestion = "「そのため」「なぜなら」などの接続詞を使って論理的な流れを明確にしてください。"

	msgRepetition           = "表現に重複が見られます。より多様な表現を心がけてください。"
	msgSentenceLengthOK     = "文章の長さが適切で読みやすい構成です。"
	msgSentenceLengthAdjust = "文章の長さを調整し、読みやすさを向上させてください。"

	msgNoRemarks = "特に指摘事項はありません。"

	msgExcellent = "非常に優秀な小論文です。論理構成、内容、表現ともに高いレベルです。"
	msgGood      = "良好な小論文です。いくつかの改善点はありますが、全体的に評価できます。"
	msgAdequate  = "基本的な要素は満たしていますが、さらなる改善が必要です。"
	msgPoor      = "大幅な改善が必要です。構成と論証を見直してください。"
)

// tally collects points and messages for one sub-score.
type tally struct {
	points      int
	feedback    []string
	suggestions []string
}

func (t *tally) add(points int) { t.points += points }

func (t *tally) note(feedback string) { t.feedback = append(t.feedback, feedback) }

func (t *tally) suggest(suggestion string) { t.suggestions = append(t.suggestions, suggestion) }

func (t *tally) capped(limit int) int { return min(max(t.points, 0), limit) }

// evaluation summarises the tally for its own dimension, falling back to the
// suggestions when nothing positive was noted.
func (t *tally) evaluation() string {
	switch {
	case len(t.feedback) > 0:
		return strings.Join(t.feedback, " ")
	case len(t.suggestions) > 0:
		return strings.Join(t.suggestions, " ")
	default:
		return msgNoRemarks
	}
}

// analysis holds the text features shared between sub-scorers.
type analysis struct {
	text       string
	theme      string
	chars      int
	paragraphs int
	counterArg bool
}

func analyze(text, theme string) analysis {
	return analysis{
		text:       text,
		theme:      theme,
		chars:      countChars(text),
		paragraphs: countParagraphs(text),
		counterArg: containsAny(text, counterMarkers),
	}
}

// Score grades an essay against its theme with the fixed rule battery.
// It is a pure function of its arguments.
func Score(text, theme string) model.ScoreResult {
	if strings.TrimSpace(text) == "" {
		return model.ScoreResult{
			Feedback:    msgEmptyFeedback,
			Suggestions: []string{msgEmptySuggestion},
			Source:      model.SourceHeuristic,
		}
	}

	a := analyze(text, theme)
	structure := scoreStructure(a)
	content := scoreContent(a)
	logic := scoreLogic(a)
	expression := scoreExpression(a)

	res := model.ScoreResult{
		Structure:  structure.capped(model.MaxStructure),
		Content:    content.capped(model.MaxContent),
		Logic:      logic.capped(model.MaxLogic),
		Expression: expression.capped(model.MaxExpression),
		Source:     model.SourceHeuristic,
	}
	res.Total = res.Sum()
	res.Evaluations = model.Evaluations{
		Structure:  structure.evaluation(),
		Content:    content.evaluation(),
		Logic:      logic.evaluation(),
		Expression: expression.evaluation(),
	}

	feedback := make([]string, 0, 12)
	suggestions := make([]string, 0, 12)
	for _, t := range []*tally{structure, content, logic, expression} {
		feedback = append(feedback, t.feedback...)
		suggestions = append(suggestions, t.suggestions...)
	}
	feedback = append(feedback, overallRemark(res.Total))

	res.Feedback = strings.Join(feedback, " ")
	res.Suggestions = suggestions
	return res
}

func scoreStructure(a analysis) *tally {
	t := &tally{}
	if a.paragraphs >= minParagraphs {
		t.add(15)
		t.note(msgParagraphsOK)
	} else {
		t.add(5)
		t.note(msgParagraphsWeak)
		t.suggest(msgParagraphsSuggestion)
	}
	if containsAny(a.text, introMarkers) {
		t.add(5)
	} else {
		t.suggest(msgIntroSuggestion)
	}
	if containsAny(a.text, conclusionMarkers) {
		t.add(5)
	} else {
		t.suggest(msgConclusionSuggestion)
	}
	if a.paragraphs >= bonusParagraphs {
		t.add(5)
	}
	return t
}

func scoreContent(a analysis) *tally {
	t := &tally{}
	switch {
	case a.chars < minChars:
		t.note(msgTooShort)
		t.suggest(msgTooShortSuggestion)
	case a.chars > maxChars:
		t.note(msgTooLong)
		t.suggest(msgTooLongSuggestion)
	}
	if containsAny(a.text, exampleMarkers) {
		t.add(10)
		t.note(msgExamplesOK)
	} else {
		t.suggest(msgExamplesSuggestion)
	}
	if dataPattern.MatchString(a.text) {
		t.add(10)
		t.note(msgDataOK)
	} else {
		t.suggest(msgDataSuggestion)
	}
	if a.counterArg {
		t.add(5)
	}
	if a.chars >= idealMinChars && a.chars <= idealMaxChars {
		t.add(5)
	}
	if prefix := themePrefix(a.theme); prefix != "" && strings.Contains(a.text, prefix) {
		t.add(5)
	}
	return t
}

func scoreLogic(a analysis) *tally {
	t := &tally{}
	if a.counterArg {
		t.add(10)
		t.note(msgCounterOK)
	} else {
		t.suggest(msgCounterSuggestion)
	}
	connectors := 0
	for _, c := range logicalConnectors {
		connectors += strings.Count(a.text, c)
	}
	if connectors >= minConnectors {
		t.add(15)
		t.note(msgConnectorsOK)
	} else {
		t.add(5)
		t.suggest(msgConnectorSuggestion)
	}
	return t
}

func scoreExpression(a analysis) *tally {
	t := &tally{}
	if countRepeats(a.text) > maxRepeats {
		t.add(5)
		t.note(msgRepetition)
	} else {
		t.add(15)
	}
	if longSentencePattern.MatchString(a.text) {
		t.add(10)
		t.note(msgSentenceLengthOK)
	} else {
		t.suggest(msgSentenceLengthAdjust)
	}
	return t
}

func overallRemark(total int) string {
	switch {
	case total >= excellentThreshold:
		return msgExcellent
	case total >= goodThreshold:
		return msgGood
	case total >= adequateThreshold:
		return msgAdequate
	default:
		return msgPoor
	}
}

// countChars counts characters, ignoring whitespace.
func countChars(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// countParagraphs counts non-blank lines.
func countParagraphs(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// countRepeats counts non-overlapping runs of 10+ characters immediately repeated.
func countRepeats(text string) int {
	// regexp2 only errors on MatchTimeout, which repeatPattern does not set.
	n := 0
	m, _ := repeatPattern.FindStringMatch(text)
	for m != nil {
		n++
		m, _ = repeatPattern.FindNextMatch(m)
	}
	return n
}

// themePrefix returns the first characters of the theme used for the overlap bonus.
func themePrefix(theme string) string {
	if utf8.RuneCountInString(theme) <= themePrefixRunes {
		return theme
	}
	return string([]rune(theme)[:themePrefixRunes])
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
