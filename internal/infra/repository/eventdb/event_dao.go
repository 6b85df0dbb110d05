package eventdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
)

var ErrEventFormat = errors.New("event format error")

const readBatchSize = 100

type EventDao struct {
	client *esdb.Client
}

func NewEventDao(db *esdb.Client) *EventDao {
	return &EventDao{client: db}
}

// NewClient esdb://host:2113?tls=false
func NewClient(connectionString string) (*esdb.Client, error) {
	settings, err := esdb.ParseConnectionString(connectionString)
	if err != nil {
		return nil, fmt.Errorf("parse eventstore connection string failed: %w", err)
	}
	return esdb.NewClient(settings)
}

// 寫入事件
func (dao *EventDao) AppendEvent(ctx context.Context, streamID, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEventFormat, err)
	}
	eventData := esdb.EventData{
		ContentType: esdb.ContentTypeJson,
		EventType:   eventType,
		Data:        payload,
	}
	_, err = dao.client.AppendToStream(ctx, streamID, esdb.AppendToStreamOptions{}, eventData)
	return err
}

// 讀取事件，stream 不存在時回傳空
func (dao *EventDao) ReadEvents(ctx context.Context, streamID string) ([]*esdb.ResolvedEvent, error) {
	stream, err := dao.client.ReadStream(ctx, streamID, esdb.ReadStreamOptions{}, readBatchSize)
	if err != nil {
		if isStreamNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	defer stream.Close()

	var events []*esdb.ResolvedEvent
	for {
		event, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if isStreamNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// 刪除事件流
func (dao *EventDao) DeleteStream(ctx context.Context, streamID string) error {
	_, err := dao.client.DeleteStream(ctx, streamID, esdb.DeleteStreamOptions{})
	return err
}

func (dao *EventDao) Close() error {
	return dao.client.Close()
}

func isStreamNotFound(err error) bool {
	esdbErr, ok := esdb.FromError(err)
	if ok {
		return false
	}
	return esdbErr.Code() == esdb.ErrorCodeResourceNotFound
}
