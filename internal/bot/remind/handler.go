// Package remind implements the reminder module: medication and general
// daily reminders with a two-step add dialog (name, then HH:MM time),
// list and delete, and a daily taken/done record.
package remind

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/bot"
	"github.com/AceNexus/LineBot/internal/lineutil"
	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/reminder"
	"github.com/AceNexus/LineBot/internal/render"
	"github.com/AceNexus/LineBot/internal/session"
)

const senderName = "提醒小幫手"

var (
	medicationAliases = []string{"6", "用藥提醒"}
	generalAliases    = []string{"7", "其他提醒"}
)

// timePattern validates HH:MM dialog input.
var timePattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// kindLabel carries the wording differences between the two reminder kinds.
type kindLabel struct {
	key       string // postback field
	title     string
	noun      string // 藥品 / 提醒
	takenVerb string // 服用 / 完成
}

var kindLabels = map[reminder.Kind]kindLabel{
	reminder.KindMedication: {key: "med", title: "💊 用藥提醒", noun: "藥品", takenVerb: "服用"},
	reminder.KindGeneral:    {key: "other", title: "⏰ 其他提醒", noun: "提醒", takenVerb: "完成"},
}

func kindByKey(key string) (reminder.Kind, bool) {
	for kind, l := range kindLabels {
		if l.key == key {
			return kind, true
		}
	}
	return "", false
}

// Handler is the reminder module.
type Handler struct {
	store    *reminder.Store
	sessions *session.Store
	slots    []string // quick-select times in the add dialog
	loc      *time.Location
	log      *logger.Logger

	now func() time.Time // swapped in tests
}

// New creates the reminder module.
func New(store *reminder.Store, sessions *session.Store, slots []string, loc *time.Location, log *logger.Logger) *Handler {
	return &Handler{
		store:    store,
		sessions: sessions,
		slots:    slots,
		loc:      loc,
		log:      log.WithModule("remind"),
		now:      time.Now,
	}
}

func (h *Handler) Name() string           { return "remind" }
func (h *Handler) PostbackPrefix() string { return "rem" + bot.PostbackSplitChar }

func (h *Handler) States() []session.State {
	return []session.State{
		session.StateAddingMedicationName,
		session.StateAddingMedicationTime,
		session.StateAddingReminderName,
		session.StateAddingReminderTime,
	}
}

func (h *Handler) CanHandle(text string) bool {
	return slices.Contains(medicationAliases, text) || slices.Contains(generalAliases, text)
}

func (h *Handler) HandleMessage(_ context.Context, _, text string) []messaging_api.MessageInterface {
	kind := reminder.KindMedication
	if slices.Contains(generalAliases, text) {
		kind = reminder.KindGeneral
	}
	return render.Messages(senderName, menuCard(kind))
}

// HandleState runs the two-step add dialog: the first message names the
// reminder, the second sets its time.
func (h *Handler) HandleState(_ context.Context, conv string, state session.State, text string) []messaging_api.MessageInterface {
	switch state {
	case session.StateAddingMedicationName:
		return h.collectName(conv, reminder.KindMedication, session.StateAddingMedicationTime, text)
	case session.StateAddingReminderName:
		return h.collectName(conv, reminder.KindGeneral, session.StateAddingReminderTime, text)
	case session.StateAddingMedicationTime:
		return h.finishAdd(conv, reminder.KindMedication, text)
	case session.StateAddingReminderTime:
		return h.finishAdd(conv, reminder.KindGeneral, text)
	}
	return nil
}

func (h *Handler) collectName(conv string, kind reminder.Kind, next session.State, text string) []messaging_api.MessageInterface {
	name := strings.TrimSpace(text)
	labels := kindLabels[kind]
	if name == "" {
		return render.Messages(senderName, render.Text{Body: fmt.Sprintf("請輸入%s名稱", labels.noun)})
	}

	h.sessions.SetPendingName(conv, name)
	h.sessions.SetState(conv, next)
	return render.Messages(senderName,
		timeCard(kind, h.slots),
		render.Text{Body: "也可以直接輸入時間,格式 HH:MM(例:08:30)"},
	)
}

func (h *Handler) finishAdd(conv string, kind reminder.Kind, text string) []messaging_api.MessageInterface {
	timeStr := strings.TrimSpace(bot.NormalizeInput(text))
	if !timePattern.MatchString(timeStr) {
		return render.Messages(senderName, render.Text{Body: "時間格式錯誤，請使用 HH:MM 格式(例如:08:30)"})
	}
	return h.addEntry(conv, kind, timeStr)
}

func (h *Handler) addEntry(conv string, kind reminder.Kind, timeStr string) []messaging_api.MessageInterface {
	labels := kindLabels[kind]

	name, ok := h.sessions.PendingName(conv)
	if !ok {
		h.sessions.Reset(conv)
		return render.Messages(senderName, render.Text{Body: "新增失敗，請重新開始"})
	}

	entry, err := h.store.AddEntry(conv, kind, name, timeStr)
	if err != nil {
		if errors.Is(err, reminder.ErrDuplicate) {
			h.sessions.Reset(conv)
			return render.Messages(senderName, render.Text{Body: fmt.Sprintf("此%s和時間已存在", labels.noun)})
		}
		h.log.WithError(err).Errorf("add %s entry failed", kind)
		h.sessions.Reset(conv)
		return render.Messages(senderName, render.Text{Body: "❌ 新增失敗，請稍後再試"})
	}

	h.sessions.Reset(conv)
	return render.Messages(senderName, render.Text{
		Body: fmt.Sprintf("✅ 新增成功！\n\n每天 %s 提醒您%s「%s」", entry.Time, labels.takenVerb, entry.Name),
	})
}

func (h *Handler) HandlePostback(_ context.Context, conv, data string) []messaging_api.MessageInterface {
	fields := bot.SplitPostback(data)
	if len(fields) < 2 {
		return h.invalid(data)
	}

	kind, ok := kindByKey(fields[0])
	if !ok {
		return h.invalid(data)
	}
	action, args := fields[1], fields[2:]

	switch action {
	case "list":
		return h.list(conv, kind)

	case "today":
		return h.today(conv, kind)

	case "add":
		labels := kindLabels[kind]
		if kind == reminder.KindMedication {
			h.sessions.SetState(conv, session.StateAddingMedicationName)
		} else {
			h.sessions.SetState(conv, session.StateAddingReminderName)
		}
		return render.Messages(senderName, render.Text{Body: fmt.Sprintf("請輸入%s名稱", labels.noun)})

	case "time":
		if len(args) != 1 || !timePattern.MatchString(args[0]) {
			return h.invalid(data)
		}
		if !h.inTimeState(conv, kind) {
			return render.Messages(senderName, render.Text{Body: "新增失敗，請重新開始"})
		}
		return h.addEntry(conv, kind, args[0])

	case "custom":
		if !h.inTimeState(conv, kind) {
			return render.Messages(senderName, render.Text{Body: "新增失敗，請重新開始"})
		}
		return render.Messages(senderName, render.Text{Body: "請輸入時間,格式 HH:MM(例:08:30)"})

	case "cancel":
		h.sessions.Reset(conv)
		return render.Messages(senderName, render.Text{Body: "已取消新增"})

	case "del":
		if len(args) != 1 {
			return h.invalid(data)
		}
		return h.delete(conv, kind, args[0])

	case "taken":
		if len(args) != 1 {
			return h.invalid(data)
		}
		return h.markTaken(conv, kind, args[0])
	}

	return h.invalid(data)
}

// inTimeState guards the time-select postbacks against arriving outside
// the add dialog (stale buttons from an old card).
func (h *Handler) inTimeState(conv string, kind reminder.Kind) bool {
	state := h.sessions.State(conv)
	if kind == reminder.KindMedication {
		return state == session.StateAddingMedicationTime
	}
	return state == session.StateAddingReminderTime
}

func (h *Handler) list(conv string, kind reminder.Kind) []messaging_api.MessageInterface {
	labels := kindLabels[kind]
	entries := h.store.Entries(conv, kind)

	addButton := render.Button{
		Kind:        render.ButtonPostback,
		Label:       "➕ 新增" + labels.noun,
		Value:       bot.BuildPostback("rem", labels.key, "add"),
		DisplayText: labels.title + ":新增" + labels.noun,
	}

	if len(entries) == 0 {
		return render.Messages(senderName, render.Card{
			Title:    labels.title,
			Subtitle: fmt.Sprintf("尚未新增任何%s\n點擊下方按鈕開始", labels.noun),
			Buttons:  []render.Button{addButton},
		})
	}

	fields := make([]render.Field, 0, len(entries))
	buttons := make([]render.Button, 0, len(entries)+1)
	for _, e := range entries {
		fields = append(fields, render.Field{Emoji: "⏰", Label: e.Time, Value: e.Name, Bold: true})
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       "刪除 " + truncateLabel(e.Name),
			Value:       bot.BuildPostback("rem", labels.key, "del", strconv.FormatInt(e.ID, 10)),
			DisplayText: fmt.Sprintf("%s:刪除「%s」", labels.title, e.Name),
		})
	}
	buttons = append(buttons, addButton)

	return render.Messages(senderName, render.Card{
		Title:    labels.title + "清單",
		Subtitle: fmt.Sprintf("共 %d 筆", len(entries)),
		Fields:   fields,
		Buttons:  buttons,
	})
}

func (h *Handler) today(conv string, kind reminder.Kind) []messaging_api.MessageInterface {
	labels := kindLabels[kind]
	date := h.todayDate()

	taken, pending := h.store.TakenToday(conv, kind, date)
	if len(taken) == 0 && len(pending) == 0 {
		return render.Messages(senderName, render.Text{Body: fmt.Sprintf("今日尚無%s記錄", labels.noun)})
	}

	fields := make([]render.Field, 0, len(taken)+len(pending))
	var buttons []render.Button
	for _, e := range taken {
		fields = append(fields, render.Field{Emoji: "✅", Label: e.Time, Value: e.Name})
	}
	for _, e := range pending {
		fields = append(fields, render.Field{Emoji: "⏳", Label: e.Time, Value: e.Name, Bold: true})
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       fmt.Sprintf("已%s %s", labels.takenVerb, truncateLabel(e.Name)),
			Value:       bot.BuildPostback("rem", labels.key, "taken", strconv.FormatInt(e.ID, 10)),
			DisplayText: fmt.Sprintf("%s:已%s「%s」", labels.title, labels.takenVerb, e.Name),
		})
	}

	return render.Messages(senderName, render.Card{
		Title:    "📋 今日" + labels.noun + "記錄",
		Subtitle: date,
		Fields:   fields,
		Buttons:  buttons,
	})
}

func (h *Handler) delete(conv string, kind reminder.Kind, idStr string) []messaging_api.MessageInterface {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return h.invalid(idStr)
	}
	if err := h.store.DeleteEntry(conv, id); err != nil {
		if errors.Is(err, reminder.ErrNotFound) {
			return render.Messages(senderName, render.Text{Body: "該筆資料不存在或已刪除"})
		}
		h.log.WithError(err).Errorf("delete entry failed")
		return render.Messages(senderName, render.Text{Body: "❌ 刪除失敗，請稍後再試"})
	}
	return append(
		render.Messages(senderName, render.Text{Body: "已刪除 🗑"}),
		h.list(conv, kind)...,
	)
}

func (h *Handler) markTaken(conv string, kind reminder.Kind, idStr string) []messaging_api.MessageInterface {
	labels := kindLabels[kind]

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return h.invalid(idStr)
	}

	var entry *reminder.Entry
	for _, e := range h.store.Entries(conv, kind) {
		if e.ID == id {
			entry = &e
			break
		}
	}
	if entry == nil {
		return render.Messages(senderName, render.Text{Body: "該筆資料不存在或已刪除"})
	}

	date := h.todayDate()
	if h.store.IsTaken(conv, entry.Name, entry.Time, date) {
		return render.Messages(senderName, render.Text{Body: fmt.Sprintf("「%s」今天已經記錄過囉", entry.Name)})
	}
	h.store.MarkTaken(conv, entry.Name, entry.Time, date)
	return render.Messages(senderName, render.Text{
		Body: fmt.Sprintf("✅ 已記錄\n\n「%s」今日已%s", entry.Name, labels.takenVerb),
	})
}

func (h *Handler) invalid(data string) []messaging_api.MessageInterface {
	h.log.WithField("data", data).Warnf("invalid remind postback")
	return render.Messages(senderName, render.Text{Body: "操作已過期或無效"})
}

// todayDate is today's date in the bot timezone, YYYY-MM-DD.
func (h *Handler) todayDate() string {
	return h.now().In(h.loc).Format("2006-01-02")
}

// truncateLabel keeps button labels inside the LINE 20-char action limit.
func truncateLabel(name string) string {
	return lineutil.TruncateRunes(name, 8)
}

// PushMessages builds the scheduled push for one due reminder: the
// announcement plus an acknowledge button. Shared with the scheduler.
func PushMessages(e reminder.Entry) []render.Renderable {
	labels := kindLabels[e.Kind]
	return []render.Renderable{
		render.Card{
			Title:    labels.title,
			Subtitle: e.Time,
			Fields: []render.Field{
				{Emoji: "🔔", Label: "提醒", Value: fmt.Sprintf("該%s「%s」了", labels.takenVerb, e.Name), Bold: true},
			},
			Buttons: []render.Button{{
				Kind:        render.ButtonPostback,
				Label:       "已" + labels.takenVerb,
				Value:       bot.BuildPostback("rem", labels.key, "taken", strconv.FormatInt(e.ID, 10)),
				DisplayText: fmt.Sprintf("%s:已%s「%s」", labels.title, labels.takenVerb, e.Name),
			}},
		},
	}
}

func menuCard(kind reminder.Kind) render.Card {
	labels := kindLabels[kind]
	return render.Card{
		Title:    labels.title,
		Subtitle: fmt.Sprintf("管理您的%s與提醒時間", labels.noun),
		Buttons: []render.Button{
			{
				Kind:        render.ButtonPostback,
				Label:       labels.noun + "清單",
				Value:       bot.BuildPostback("rem", labels.key, "list"),
				DisplayText: labels.title + ":查看" + labels.noun + "清單",
			},
			{
				Kind:        render.ButtonPostback,
				Label:       "今日記錄",
				Value:       bot.BuildPostback("rem", labels.key, "today"),
				DisplayText: labels.title + ":查看今日記錄",
			},
		},
	}
}

func timeCard(kind reminder.Kind, slots []string) render.Card {
	labels := kindLabels[kind]
	buttons := make([]render.Button, 0, len(slots)+2)
	for _, slot := range slots {
		buttons = append(buttons, render.Button{
			Kind:        render.ButtonPostback,
			Label:       slot,
			Value:       bot.BuildPostback("rem", labels.key, "time", slot),
			DisplayText: fmt.Sprintf("%s:設定時間 %s", labels.title, slot),
		})
	}
	buttons = append(buttons,
		render.Button{
			Kind:        render.ButtonPostback,
			Label:       "其他時間",
			Value:       bot.BuildPostback("rem", labels.key, "custom"),
			DisplayText: labels.title + ":自訂時間",
		},
		render.Button{
			Kind:        render.ButtonPostback,
			Label:       "取消",
			Value:       bot.BuildPostback("rem", labels.key, "cancel"),
			DisplayText: labels.title + ":取消新增",
		},
	)
	return render.Card{
		Title:    "選擇提醒時間",
		Subtitle: "點選常用時段或自訂",
		Buttons:  buttons,
	}
}
