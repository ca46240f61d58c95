package language

import (
	"fmt"
	"strings"
)

// ReplyKind 兜底回应的弹幕分类，按优先级排列。
type ReplyKind int

const (
	KindGift ReplyKind = iota
	KindQuestion
	KindWelcome
	KindHumor
	KindSupport
	KindDefault
)

// Templates 一种语言的全部模板文案。{user}、{name}、{topic} 为占位符。
type Templates struct {
	// Fallback 按弹幕分类、再按关系等级（0..3）索引
	Fallback map[ReplyKind][4]string
	Farewell string
	// Transitions 离题后回到剧情的过渡语
	Transitions []string
	// Hint 告诉 LLM 用什么语言、什么口吻回应
	Hint      string
	SeedUser  string
	Separator string
	// Status 直播间各阶段推送给观众的提示
	Status StatusTexts
}

// StatusTexts 直播间阶段提示。ScriptReady 带一个 %d（台词句数）。
type StatusTexts struct {
	Preparing   string
	Generating  string
	ScriptReady string
	Finished    string
	Stopped     string
}

var tables = map[Code]Templates{
	Chinese: {
		Fallback: map[ReplyKind][4]string{
			KindGift:     {"哇感谢{user}的SC！", "哇感谢{user}的SC！", "谢谢老板的SC！", "感谢老板！又来支持我了"},
			KindQuestion: {"好嘞，听我慢慢说", "好嘞，听我慢慢说", "别急别急，马上就说", "别急别急，马上就说"},
			KindWelcome:  {"欢迎{user}来到{name}的直播间！", "欢迎{user}来到{name}的直播间！", "欢迎回来{user}！", "欢迎回来{user}！"},
			KindHumor:    {"哎你们别笑啊", "哎你们别笑啊", "哈哈哈哈", "{user}你每次都笑这么开心"},
			KindSupport:  {"谢谢谢谢！", "谢谢谢谢！", "好嘞好嘞", "好嘞好嘞"},
			KindDefault:  {"哦对", "好嘞", "诶你又来了", "{user}你又来了"},
		},
		Farewell:    "好啦，今天关于{topic}就聊到这里，谢谢大家！",
		Transitions: []string{"好，那刚才说到，", "回到我们的故事，", "继续说，", "对了，", ""},
		Hint:        "用中文回应，自然口语化，像真人一样，可以用语气词（诶、哈哈、哎）",
		SeedUser:    "用户_%d",
		Separator:   "",
		Status: StatusTexts{
			Preparing:   "正在准备直播...",
			Generating:  "正在生成剧本...",
			ScriptReady: "剧本已就绪，共 %d 句",
			Finished:    "直播结束",
			Stopped:     "直播已停止",
		},
	},
	English: {
		Fallback: map[ReplyKind][4]string{
			KindGift:     {"Wow, thank you {user} for the super chat!", "Wow, thank you {user} for the super chat!", "Thanks for the super chat, boss!", "Thank you! You're always here for me"},
			KindQuestion: {"Okay okay, let me get to that", "Okay okay, let me get to that", "Hold on, I'm getting there", "Hold on, I'm getting there"},
			KindWelcome:  {"Welcome {user} to {name}'s stream!", "Welcome {user} to {name}'s stream!", "Welcome back {user}!", "Welcome back {user}!"},
			KindHumor:    {"Hey, don't laugh!", "Hey, don't laugh!", "Hahaha", "{user}, you always laugh so hard"},
			KindSupport:  {"Thank you, thank you!", "Thank you, thank you!", "Alright, let's go", "Alright, let's go"},
			KindDefault:  {"Oh right", "Yeah", "Oh hey, you're back", "{user}, you're here again"},
		},
		Farewell:    "Alright, that's all about {topic} for today. Thanks everyone!",
		Transitions: []string{"Okay, where was I, ", "Back to the story, ", "Anyway, ", "Oh right, ", ""},
		Hint:        "Respond in English, be natural and casual, use fillers like 'like', 'you know', 'oh'",
		SeedUser:    "viewer_%d",
		Separator:   " ",
		Status: StatusTexts{
			Preparing:   "Getting the stream ready...",
			Generating:  "Writing the script...",
			ScriptReady: "Script ready: %d lines",
			Finished:    "Stream finished",
			Stopped:     "Stream stopped",
		},
	},
	Japanese: {
		Fallback: map[ReplyKind][4]string{
			KindGift:     {"{user}さん、スパチャありがとう！", "{user}さん、スパチャありがとう！", "スパチャありがとうございます！", "いつも応援ありがとう！"},
			KindQuestion: {"はいはい、今から話すね", "はいはい、今から話すね", "ちょっと待って、すぐ言うから", "ちょっと待って、すぐ言うから"},
			KindWelcome:  {"{user}さん、{name}のライブにようこそ！", "{user}さん、{name}のライブにようこそ！", "{user}さん、おかえり！", "{user}さん、おかえり！"},
			KindHumor:    {"ちょっと、笑わないでよ", "ちょっと、笑わないでよ", "あはは", "{user}さんいつも笑ってくれるね"},
			KindSupport:  {"ありがとう！", "ありがとう！", "よし、がんばる", "よし、がんばる"},
			KindDefault:  {"あ、そうそう", "うんうん", "あ、また来てくれた", "{user}さん、また来てくれたね"},
		},
		Farewell:    "はい、今日の{topic}の話はここまで。みんなありがとう！",
		Transitions: []string{"それで、さっきの話に戻ると、", "話を戻すと、", "それでね、", "あ、そうだ、", ""},
		Hint:        "日本語で応答、自然な口調で、フィラー言葉（あ、それで、ね）を使って",
		SeedUser:    "視聴者_%d",
		Separator:   "",
		Status: StatusTexts{
			Preparing:   "配信の準備中...",
			Generating:  "台本を作成中...",
			ScriptReady: "台本の準備ができました（全%d行）",
			Finished:    "配信終了",
			Stopped:     "配信を停止しました",
		},
	},
}

// For 返回语言对应的模板；未知语言使用中文模板。
func For(code Code) Templates {
	if t, ok := tables[code]; ok {
		return t
	}
	return tables[Chinese]
}

// FallbackReply 按分类和关系等级选出兜底回应。
func (t Templates) FallbackReply(kind ReplyKind, tier int, user, performer string) string {
	if tier < 0 {
		tier = 0
	}
	if tier > 3 {
		tier = 3
	}
	row, ok := t.Fallback[kind]
	if !ok {
		row = t.Fallback[KindDefault]
	}
	return fill(row[tier], map[string]string{"{user}": user, "{name}": performer})
}

// FarewellLine 演出结束语。
func (t Templates) FarewellLine(topic string) string {
	return fill(t.Farewell, map[string]string{"{topic}": topic})
}

// Transition 按 pick（0..1）选一句过渡语。
func (t Templates) Transition(pick float64) string {
	if len(t.Transitions) == 0 {
		return ""
	}
	i := int(pick * float64(len(t.Transitions)))
	if i >= len(t.Transitions) {
		i = len(t.Transitions) - 1
	}
	if i < 0 {
		i = 0
	}
	return t.Transitions[i]
}

// ScriptReadyInfo 剧本就绪提示
func (t Templates) ScriptReadyInfo(lines int) string {
	return fmt.Sprintf(t.Status.ScriptReady, lines)
}

// SeedUserName 预置弹幕的作者名，从 0 开始编号。
func (t Templates) SeedUserName(i int) string {
	return fmt.Sprintf(t.SeedUser, i)
}

// Join 拼接两段台词；英文用空格分隔，中日文直接相连。
func (t Templates) Join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, t.Separator)
}

func fill(s string, vars map[string]string) string {
	for k, v := range vars {
		s = strings.ReplaceAll(s, k, v)
	}
	return s
}
