package remind

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/AceNexus/LineBot/internal/logger"
	"github.com/AceNexus/LineBot/internal/reminder"
	"github.com/AceNexus/LineBot/internal/render"
	"github.com/AceNexus/LineBot/internal/session"
)

func newTestHandler(t *testing.T) (*Handler, *session.Store, *reminder.Store) {
	t.Helper()

	store := reminder.NewStore(nil)
	sessions := session.NewStore()
	h := New(store, sessions, []string{"08:00", "12:00", "18:00", "21:00"}, time.UTC, logger.New("error"))
	h.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return h, sessions, store
}

func firstText(t *testing.T, msgs []messaging_api.MessageInterface) string {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatal("no messages")
	}
	text, ok := msgs[0].(*messaging_api.TextMessage)
	if !ok {
		t.Fatalf("message type %T, want text", msgs[0])
	}
	return text.Text
}

func TestHandleMessage_Menus(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	msgs := h.HandleMessage(context.Background(), "U1", "6")
	flex, ok := msgs[0].(*messaging_api.FlexMessage)
	if !ok {
		t.Fatalf("message type %T, want flex", msgs[0])
	}
	if !strings.Contains(flex.AltText, "用藥提醒") {
		t.Errorf("altText = %q", flex.AltText)
	}

	msgs = h.HandleMessage(context.Background(), "U1", "7")
	flex = msgs[0].(*messaging_api.FlexMessage)
	if !strings.Contains(flex.AltText, "其他提醒") {
		t.Errorf("altText = %q", flex.AltText)
	}
}

func TestAddFlow_TextTime(t *testing.T) {
	t.Parallel()

	h, sessions, store := newTestHandler(t)
	ctx := context.Background()

	got := firstText(t, h.HandlePostback(ctx, "U1", "med$add"))
	if !strings.Contains(got, "藥品名稱") {
		t.Fatalf("add prompt = %q", got)
	}
	if sessions.State("U1") != session.StateAddingMedicationName {
		t.Fatal("name state should be armed")
	}

	msgs := h.HandleState(ctx, "U1", session.StateAddingMedicationName, "維他命C")
	if len(msgs) != 2 {
		t.Fatalf("name step messages = %d, want time card + hint", len(msgs))
	}
	if sessions.State("U1") != session.StateAddingMedicationTime {
		t.Fatal("time state should be armed")
	}

	got = firstText(t, h.HandleState(ctx, "U1", session.StateAddingMedicationTime, "8:05"))
	if !strings.Contains(got, "新增成功") || !strings.Contains(got, "08:05") {
		t.Fatalf("confirm reply = %q", got)
	}
	if sessions.State("U1") != session.StateNormal {
		t.Error("dialog should be closed")
	}

	entries := store.Entries("U1", reminder.KindMedication)
	if len(entries) != 1 || entries[0].Name != "維他命C" || entries[0].Time != "08:05" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAddFlow_FullwidthTime(t *testing.T) {
	t.Parallel()

	h, _, store := newTestHandler(t)
	ctx := context.Background()

	h.HandlePostback(ctx, "U1", "med$add")
	h.HandleState(ctx, "U1", session.StateAddingMedicationName, "維他命C")

	got := firstText(t, h.HandleState(ctx, "U1", session.StateAddingMedicationTime, "０８：３０"))
	if !strings.Contains(got, "新增成功") || !strings.Contains(got, "08:30") {
		t.Fatalf("confirm reply = %q, want fullwidth ０８：３０ accepted", got)
	}
	entries := store.Entries("U1", reminder.KindMedication)
	if len(entries) != 1 || entries[0].Time != "08:30" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAddFlow_ButtonTime(t *testing.T) {
	t.Parallel()

	h, _, store := newTestHandler(t)
	ctx := context.Background()

	h.HandlePostback(ctx, "U1", "other$add")
	h.HandleState(ctx, "U1", session.StateAddingReminderName, "倒垃圾")

	got := firstText(t, h.HandlePostback(ctx, "U1", "other$time$18:00"))
	if !strings.Contains(got, "新增成功") {
		t.Fatalf("confirm reply = %q", got)
	}
	entries := store.Entries("U1", reminder.KindGeneral)
	if len(entries) != 1 || entries[0].Time != "18:00" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAddFlow_InvalidTimeReprompts(t *testing.T) {
	t.Parallel()

	h, sessions, _ := newTestHandler(t)
	ctx := context.Background()

	h.HandlePostback(ctx, "U1", "med$add")
	h.HandleState(ctx, "U1", session.StateAddingMedicationName, "魚油")

	got := firstText(t, h.HandleState(ctx, "U1", session.StateAddingMedicationTime, "25:99"))
	if !strings.Contains(got, "時間格式錯誤") {
		t.Fatalf("reply = %q", got)
	}
	if sessions.State("U1") != session.StateAddingMedicationTime {
		t.Error("dialog should stay on the time step")
	}
}

func TestAddFlow_Duplicate(t *testing.T) {
	t.Parallel()

	h, _, store := newTestHandler(t)
	ctx := context.Background()

	_, _ = store.AddEntry("U1", reminder.KindMedication, "魚油", "08:00")

	h.HandlePostback(ctx, "U1", "med$add")
	h.HandleState(ctx, "U1", session.StateAddingMedicationName, "魚油")
	got := firstText(t, h.HandleState(ctx, "U1", session.StateAddingMedicationTime, "08:00"))
	if !strings.Contains(got, "已存在") {
		t.Errorf("reply = %q", got)
	}
}

func TestAddFlow_Cancel(t *testing.T) {
	t.Parallel()

	h, sessions, _ := newTestHandler(t)
	ctx := context.Background()

	h.HandlePostback(ctx, "U1", "med$add")
	h.HandleState(ctx, "U1", session.StateAddingMedicationName, "魚油")

	got := firstText(t, h.HandlePostback(ctx, "U1", "med$cancel"))
	if !strings.Contains(got, "已取消") {
		t.Errorf("reply = %q", got)
	}
	if sessions.State("U1") != session.StateNormal {
		t.Error("cancel should reset the dialog")
	}
}

func TestTimeButtonOutsideDialog(t *testing.T) {
	t.Parallel()

	h, _, store := newTestHandler(t)

	got := firstText(t, h.HandlePostback(context.Background(), "U1", "med$time$08:00"))
	if !strings.Contains(got, "重新開始") {
		t.Errorf("reply = %q", got)
	}
	if len(store.Entries("U1", reminder.KindMedication)) != 0 {
		t.Error("stale time button must not create an entry")
	}
}

func TestListAndDelete(t *testing.T) {
	t.Parallel()

	h, _, store := newTestHandler(t)
	ctx := context.Background()

	flex, ok := h.HandlePostback(ctx, "U1", "med$list")[0].(*messaging_api.FlexMessage)
	if !ok || !strings.Contains(flex.AltText, "用藥提醒") {
		t.Fatal("empty list should still render the list card")
	}

	entry, _ := store.AddEntry("U1", reminder.KindMedication, "魚油", "08:00")

	msgs := h.HandlePostback(ctx, "U1", "med$del$"+formatID(entry.ID))
	if got := firstText(t, msgs); !strings.Contains(got, "已刪除") {
		t.Fatalf("delete reply = %q", got)
	}
	if len(store.Entries("U1", reminder.KindMedication)) != 0 {
		t.Error("entry should be deleted")
	}

	got := firstText(t, h.HandlePostback(ctx, "U1", "med$del$999"))
	if !strings.Contains(got, "不存在") {
		t.Errorf("missing delete reply = %q", got)
	}
}

func TestTodayAndTaken(t *testing.T) {
	t.Parallel()

	h, _, store := newTestHandler(t)
	ctx := context.Background()

	got := firstText(t, h.HandlePostback(ctx, "U1", "med$today"))
	if !strings.Contains(got, "尚無") {
		t.Fatalf("empty today reply = %q", got)
	}

	entry, _ := store.AddEntry("U1", reminder.KindMedication, "魚油", "08:00")

	if _, ok := h.HandlePostback(ctx, "U1", "med$today")[0].(*messaging_api.FlexMessage); !ok {
		t.Fatal("today with entries should render a card")
	}

	got = firstText(t, h.HandlePostback(ctx, "U1", "med$taken$"+formatID(entry.ID)))
	if !strings.Contains(got, "已記錄") {
		t.Fatalf("taken reply = %q", got)
	}
	if !store.IsTaken("U1", "魚油", "08:00", "2026-03-14") {
		t.Error("taken record should use the handler clock date")
	}

	got = firstText(t, h.HandlePostback(ctx, "U1", "med$taken$"+formatID(entry.ID)))
	if !strings.Contains(got, "已經記錄過") {
		t.Errorf("double taken reply = %q", got)
	}
}

func TestPushMessages(t *testing.T) {
	t.Parallel()

	items := PushMessages(reminder.Entry{
		ID: 7, Conversation: "U1", Kind: reminder.KindGeneral, Name: "倒垃圾", Time: "18:00",
	})
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	card, ok := items[0].(render.Card)
	if !ok {
		t.Fatalf("item type %T, want card", items[0])
	}
	if len(card.Buttons) != 1 || card.Buttons[0].Value != "rem$other$taken$7" {
		t.Errorf("buttons = %+v", card.Buttons)
	}
}

func TestHandlePostback_Invalid(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)

	for _, data := range []string{"med", "bogus$list", "med$bogus", "med$del$abc"} {
		got := firstText(t, h.HandlePostback(context.Background(), "U1", data))
		if !strings.Contains(got, "過期") {
			t.Errorf("data %q: reply = %q", data, got)
		}
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
