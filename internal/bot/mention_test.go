package bot

import (
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

func selfMention(index, length int32) webhook.UserMentionee {
	return webhook.UserMentionee{Index: index, Length: length, IsSelf: true}
}

func otherMention(index, length int32) webhook.UserMentionee {
	return webhook.UserMentionee{Index: index, Length: length, IsSelf: false}
}

func TestIsBotMentioned(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  webhook.TextMessageContent
		want bool
	}{
		{
			name: "no mention block",
			msg:  webhook.TextMessageContent{Text: "hello"},
			want: false,
		},
		{
			name: "empty mentionees",
			msg:  webhook.TextMessageContent{Text: "hello", Mention: &webhook.Mention{}},
			want: false,
		},
		{
			name: "other user mentioned",
			msg: webhook.TextMessageContent{
				Text: "@someone hi",
				Mention: &webhook.Mention{
					Mentionees: []webhook.MentioneeInterface{otherMention(0, 8)},
				},
			},
			want: false,
		},
		{
			name: "bot mentioned",
			msg: webhook.TextMessageContent{
				Text: "@bot hi",
				Mention: &webhook.Mention{
					Mentionees: []webhook.MentioneeInterface{selfMention(0, 4)},
				},
			},
			want: true,
		},
		{
			name: "bot among several mentions",
			msg: webhook.TextMessageContent{
				Text: "@a @bot hi",
				Mention: &webhook.Mention{
					Mentionees: []webhook.MentioneeInterface{otherMention(0, 2), selfMention(3, 4)},
				},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBotMentioned(tt.msg); got != tt.want {
				t.Errorf("IsBotMentioned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveBotMentions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		mention *webhook.Mention
		want    string
	}{
		{
			name: "nil mention unchanged",
			text: "hello",
			want: "hello",
		},
		{
			name: "leading bot mention stripped",
			text: "@bot 今天天氣如何",
			mention: &webhook.Mention{
				Mentionees: []webhook.MentioneeInterface{selfMention(0, 4)},
			},
			want: "今天天氣如何",
		},
		{
			name: "other mentions preserved",
			text: "@bot 問 @小明 好",
			mention: &webhook.Mention{
				Mentionees: []webhook.MentioneeInterface{selfMention(0, 4), otherMention(7, 3)},
			},
			want: "問 @小明 好",
		},
		{
			name: "multiple bot mentions removed back to front",
			text: "@bot hi @bot",
			mention: &webhook.Mention{
				Mentionees: []webhook.MentioneeInterface{selfMention(0, 4), selfMention(8, 4)},
			},
			want: "hi",
		},
		{
			name: "out of range index ignored",
			text: "hi",
			mention: &webhook.Mention{
				Mentionees: []webhook.MentioneeInterface{selfMention(10, 4)},
			},
			want: "hi",
		},
		{
			name: "length past end clamped",
			text: "@bot",
			mention: &webhook.Mention{
				Mentionees: []webhook.MentioneeInterface{selfMention(0, 99)},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := removeBotMentions(tt.text, tt.mention); got != tt.want {
				t.Errorf("removeBotMentions(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
