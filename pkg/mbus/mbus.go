package mbus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonaz/gombus"
	"github.com/nergy-se/heatharmony/pkg/api/v1/meter"
	"github.com/sirupsen/logrus"
)

type Mbus struct {
	device string
	conn   gombus.Conn
	mutex  *sync.Mutex
}

func New(device string) *Mbus {
	return &Mbus{
		device: device,
		mutex:  &sync.Mutex{},
	}
}

func (m *Mbus) init() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.conn != nil {
		return nil
	}
	c, err := gombus.DialSerial(m.device)
	if err != nil {
		return err
	}
	m.conn = c
	return nil
}

func (m *Mbus) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}

func (m *Mbus) ReadValues(model, idStr string) (*meter.Data, error) {
	err := m.init()
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil, err
	}

	frame, err := m.read(id)
	if err != nil {
		m.Close()
		return nil, err
	}

	data := &meter.Data{
		Id:    idStr,
		Model: model,
		Time:  time.Now(),
	}
	return data, decode(model, frame, data)
}

func decode(model string, frame *gombus.DecodedFrame, data *meter.Data) error {
	switch model {
	case "garo-GNM3D-MBUS":
		if len(frame.DataRecords) < 11 {
			return fmt.Errorf("mbus: expected 11 records from %s got %d", model, len(frame.DataRecords))
		}
		data.Total_WH = frame.DataRecords[0].Value
		data.Current_W = frame.DataRecords[2].Value
		data.L1_A = frame.DataRecords[8].Value
		data.L2_A = frame.DataRecords[9].Value
		data.L3_A = frame.DataRecords[10].Value
		return nil
	}
	return fmt.Errorf("mbus: unsupported model %s", model)
}

func (m *Mbus) read(primaryAddr int) (*gombus.DecodedFrame, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, err := m.conn.Write(gombus.SndNKE(uint8(primaryAddr)))
	if err != nil {
		return nil, err
	}

	err = m.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	if err != nil {
		return nil, err
	}

	_, err = gombus.ReadSingleCharFrame(m.conn)
	if err != nil {
		return nil, err
	}

	return gombus.ReadSingleFrame(m.conn, primaryAddr)
}

// Poller reads the water heater meter into cache.
type Poller struct {
	reader interface {
		ReadValues(model, id string) (*meter.Data, error)
	}
	model string
	id    string
	cache *meter.Cache
}

func NewPoller(m *Mbus, model, id string, cache *meter.Cache) *Poller {
	return &Poller{reader: m, model: model, id: id, cache: cache}
}

func (p *Poller) Poll(ctx context.Context) error {
	data, err := p.reader.ReadValues(p.model, p.id)
	if err != nil {
		return err
	}
	p.cache.Set(data)
	logrus.WithFields(logrus.Fields{
		"w":  data.Current_W,
		"wh": data.Total_WH,
	}).Debug("mbus: read meter")
	return nil
}
