package retention

import "peerchat/pkg/models"

func testMsg(chat string, guid uint64, ts int64) models.Message {
	return models.Message{
		GUID:  guid,
		Chat:  chat,
		TS:    ts,
		Type:  models.TypeText,
		Data:  []byte("hello"),
		State: models.StatePending,
	}
}
