package drill

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

var themes = []string{
	"デジタル化が教育に与える影響について論じなさい。",
	"少子高齢化社会における地域の役割について述べよ。",
	"環境保護と経済成長の両立は可能か、あなたの考えを述べなさい。",
	"グローバル化の中で日本の大学が果たすべき役割を論じなさい。",
}

var (
	openings = []string{
		"私はこの問題について賛成の立場をとる。",
		"本稿では、この課題について考察する。",
		"現代社会において、この問題はますます重要になっている。",
	}
	bodies = []string{
		"なぜなら、技術の進歩によって学習の機会が広がったからである。",
		"例えば、2020年には多くの大学がオンライン授業を導入した。",
		"確かに、反対の意見も存在する。しかし、長期的な視点で見れば利点の方が大きい。",
		"具体的には、地方自治体と企業の連携が求められる。",
		"その結果、若者の30%が新しい働き方を選ぶようになった。",
		"したがって、制度の見直しが必要である。",
		"一方で、費用の問題も無視できない。",
	}
	closings = []string{
		"以上のことから、私は積極的に取り組むべきだと考える。",
		"結論として、社会全体での議論が不可欠である。",
		"このように、多角的な視点から検討することが重要だ。",
	}
)

// generator builds synthetic essays of varying quality.
type generator struct {
	rng *rand.Rand
}

func newGenerator(seed uint64) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// essays returns n essays with unique submission ids.
func (g *generator) essays(n int) []Essay {
	out := make([]Essay, n)
	for i := range out {
		out[i] = g.essay()
	}
	return out
}

func (g *generator) essay() Essay {
	var b strings.Builder
	// Some essays skip the opening or closing so the structure scores spread out.
	if g.rng.IntN(4) != 0 {
		b.WriteString(openings[g.rng.IntN(len(openings))])
		b.WriteString("\n\n")
	}
	paragraphs := 1 + g.rng.IntN(4)
	for p := 0; p < paragraphs; p++ {
		sentences := 1 + g.rng.IntN(4)
		for s := 0; s < sentences; s++ {
			b.WriteString(bodies[g.rng.IntN(len(bodies))])
		}
		b.WriteString("\n\n")
	}
	if g.rng.IntN(4) != 0 {
		b.WriteString(closings[g.rng.IntN(len(closings))])
	}

	limit := 60 + 30*g.rng.IntN(3)
	return Essay{
		SubmissionID:   uuid.NewString(),
		Text:           strings.TrimSpace(b.String()),
		Theme:          themes[g.rng.IntN(len(themes))],
		TimeLimit:      limit,
		ElapsedSeconds: g.rng.IntN(limit*60 + 600),
	}
}
