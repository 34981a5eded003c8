package storage

import (
	"encoding/json"

	"pipeline-validation/internal/crypto"
)

type Repository struct {
	Store     *Store
	Encryptor crypto.Encryptor
}

func NewRepository(store *Store, enc crypto.Encryptor) *Repository {
	return &Repository{Store: store, Encryptor: enc}
}

func jsonArg(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func jsonValue(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
