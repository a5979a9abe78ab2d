package publisher

import (
	"testing"
	"time"

	commonevents "github.com/scrimx/scrims/common/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	at := time.Unix(1700000000, 0)
	msg, err := Encode(Event{
		Subject:  commonevents.SlotClaimed,
		ScrimsID: "s1",
		GuildID:  "g1",
		Attrs:    map[string]interface{}{"slot": 3, "team": "Owls"},
	}, "evt-1", at)
	require.NoError(t, err)

	f := msg.GetFields()
	assert.Equal(t, "evt-1", f["eventId"].GetStringValue())
	assert.Equal(t, commonevents.SlotClaimed, f["subject"].GetStringValue())
	assert.Equal(t, float64(1700000000), f["timestamp"].GetNumberValue())
	attrs := f["attrs"].GetStructValue().GetFields()
	assert.Equal(t, float64(3), attrs["slot"].GetNumberValue())
	assert.Equal(t, "Owls", attrs["team"].GetStringValue())
}

func TestEncode_RejectsUnsupportedAttr(t *testing.T) {
	_, err := Encode(Event{Subject: "x", Attrs: map[string]interface{}{"bad": []string{"a"}}}, "id", time.Now())
	assert.Error(t, err)
}
