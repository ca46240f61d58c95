package actor

import (
	"context"

	"livecast/server/internal/language"
	"livecast/server/internal/model"
)

// Fallback 按关系等级和弹幕分类选一句模板回应，永远不会失败。
func Fallback(req ReplyRequest) Reply {
	tpl := language.For(req.Lang)
	text := tpl.FallbackReply(classify(req), int(req.Viewer.Tier), req.Event.User, req.Performer)
	return Reply{Text: text, Action: model.ReplyContinue, Fallback: true}
}

func classify(req ReplyRequest) language.ReplyKind {
	evt := req.Event
	switch {
	case evt.Gift:
		return language.KindGift
	case evt.IsQuestion():
		return language.KindQuestion
	case req.Viewer.InteractionCount <= 1:
		return language.KindWelcome
	case evt.IsHumorous():
		return language.KindHumor
	case evt.IsSupportive():
		return language.KindSupport
	default:
		return language.KindDefault
	}
}

// TemplateReplier 不调用 LLM、始终使用模板回应，离线运行时使用。
type TemplateReplier struct{}

// Reply 返回模板回应
func (TemplateReplier) Reply(_ context.Context, req ReplyRequest) (Reply, error) {
	return Fallback(req), nil
}
