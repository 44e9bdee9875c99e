package mqtt

import (
	"time"

	"github.com/nergy-se/heatharmony/pkg/changelog"
)

type ChangeMessage struct {
	Time        int64  `json:"time"`
	Subsystem   string `json:"subsystem"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

func NewChangeMessage(c changelog.Change) ChangeMessage {
	return ChangeMessage{
		Time:        c.Time.Unix(),
		Subsystem:   string(c.Subsystem),
		Kind:        string(c.Kind),
		Description: c.Description,
	}
}

func (m ChangeMessage) AsChange() changelog.Change {
	return changelog.Change{
		Time:        time.Unix(m.Time, 0),
		Subsystem:   changelog.Subsystem(m.Subsystem),
		Kind:        changelog.Kind(m.Kind),
		Description: m.Description,
	}
}
