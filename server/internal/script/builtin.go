package script

import (
	"context"
	"strings"

	"livecast/server/internal/language"
	"livecast/server/internal/model"
)

type builtinLine struct {
	stage model.Stage
	cost  float64
	text  string
	info  string
	level int
}

// 离线模式下的通用剧本骨架，{topic} 会被替换成话题。
var builtinScripts = map[language.Code][]builtinLine{
	language.Chinese: {
		{model.StageHook, 0.2, "诶你们知道吗，我今天一定要跟你们聊聊{topic}，憋了好几天了。", "开场", 0},
		{model.StageHook, 0.3, "事情是这样的，大概是上个月吧，也可能是上上个月，记不清了。", "时间", 0},
		{model.StageBuildUp, 0.4, "一开始我觉得{topic}没什么，就是很普通的一件事。", "起因", 0},
		{model.StageBuildUp, 0.5, "结果后来越来越不对劲，我身边的人全都开始说这件事。", "转折", 0},
		{model.StageBuildUp, 0.6, "然后我就去问了一个朋友，她的反应我到现在都忘不了。", "朋友", 0},
		{model.StageClimax, 0.8, "她说，你不知道吗？整件事其实跟你想的完全相反！", "真相", 2},
		{model.StageClimax, 0.9, "我当时整个人都僵住了……就，脑子一片空白。", "震惊", 3},
		{model.StageResolution, 0.4, "反正就这么个事，你们自己品吧，{topic}就是这么离谱。", "结局", 0},
	},
	language.English: {
		{model.StageHook, 0.2, "Okay chat, I have to tell you about {topic}, I've been holding this in for days.", "opening", 0},
		{model.StageHook, 0.3, "So this was, like, last month? Or the month before, I don't remember.", "timing", 0},
		{model.StageBuildUp, 0.4, "At first I thought {topic} was no big deal, totally normal.", "cause", 0},
		{model.StageBuildUp, 0.5, "But then things got weird, and everyone around me started talking about it.", "twist", 0},
		{model.StageBuildUp, 0.6, "So I asked a friend, and I will never forget her reaction.", "friend", 0},
		{model.StageClimax, 0.8, "She goes, you don't know? The whole thing is the exact opposite of what you think!", "truth", 2},
		{model.StageClimax, 0.9, "I just froze... like, my brain went completely blank.", "shock", 3},
		{model.StageResolution, 0.4, "Anyway, that's the story. {topic}, everybody. Make of it what you will.", "ending", 0},
	},
	language.Japanese: {
		{model.StageHook, 0.2, "ねえみんな、今日は{topic}の話をどうしてもしたくて、ずっと我慢してたの。", "オープニング", 0},
		{model.StageHook, 0.3, "えっと、先月だったかな、その前だったかも、よく覚えてない。", "時期", 0},
		{model.StageBuildUp, 0.4, "最初は{topic}なんて普通のことだと思ってたんだよね。", "きっかけ", 0},
		{model.StageBuildUp, 0.5, "でもだんだん様子がおかしくなって、周りのみんながその話をし始めたの。", "転換", 0},
		{model.StageBuildUp, 0.6, "それで友達に聞いてみたら、その反応が今でも忘れられなくて。", "友達", 0},
		{model.StageClimax, 0.8, "知らないの？全部、あなたが思ってるのと真逆だよ！って言われて。", "真相", 2},
		{model.StageClimax, 0.9, "もう固まっちゃって……頭が真っ白になった。", "衝撃", 3},
		{model.StageResolution, 0.4, "まあ、そういうこと。{topic}って本当にすごいよね。", "結末", 0},
	},
}

// BuiltinGenerator 不依赖外部服务的通用剧本
type BuiltinGenerator struct{}

// Generate 用话题填充内置骨架
func (BuiltinGenerator) Generate(ctx context.Context, req Request) ([]model.ScriptLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tpl, ok := builtinScripts[req.Lang]
	if !ok {
		tpl = builtinScripts[language.Chinese]
	}
	lines := make([]model.ScriptLine, 0, len(tpl))
	for _, b := range tpl {
		line := model.ScriptLine{
			Stage:            b.stage,
			Text:             strings.ReplaceAll(b.text, "{topic}", req.Topic),
			InterruptionCost: b.cost,
			KeyInfo:          []string{b.info},
		}
		if b.level > 0 {
			line.EmotionBreak = &model.EmotionBreak{Level: b.level, Trigger: b.info}
		}
		lines = append(lines, line)
	}
	// 骨架只有 8 行，下限按骨架长度放宽
	minLines, maxLines := req.bounds()
	if minLines > len(lines) {
		minLines = len(lines)
	}
	return Finalize(lines, minLines, maxLines)
}
