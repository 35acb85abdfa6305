package storage

import (
	"testing"

	"github.com/ruteri/sealed-config/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFields(t *testing.T) {
	record, err := saveRecordField(nil, "secrets.db_password", []byte(`{"format_version":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"secrets":{"db_password":{"format_version":1}}}`, string(record))

	record, err = saveRecordField(record, "secrets.api_token", []byte(`"plain"`))
	require.NoError(t, err)
	record, err = saveRecordField(record, "hostname", []byte(`"web-01"`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"hostname":"web-01","secrets":{"db_password":{"format_version":1},"api_token":"plain"}}`, string(record))

	value, err := loadRecordField(record, "secrets.db_password")
	require.NoError(t, err)
	assert.JSONEq(t, `{"format_version":1}`, string(value))

	value, err = loadRecordField(record, "hostname")
	require.NoError(t, err)
	assert.Equal(t, `"web-01"`, string(value))

	record, err = saveRecordField(record, "secrets.db_password", []byte(`{"format_version":0}`))
	require.NoError(t, err)
	value, err = loadRecordField(record, "secrets.db_password")
	require.NoError(t, err)
	assert.JSONEq(t, `{"format_version":0}`, string(value))
}

func TestRecordFieldsNotFound(t *testing.T) {
	record := []byte(`{"hostname":"web-01","secrets":{"cleared":null}}`)

	for _, path := range []interfaces.FieldPath{"missing", "secrets.missing", "hostname.nested", "secrets.cleared"} {
		_, err := loadRecordField(record, path)
		assert.ErrorIs(t, err, interfaces.ErrFieldNotFound, path)
	}

	_, err := loadRecordField(nil, "hostname")
	assert.ErrorIs(t, err, interfaces.ErrFieldNotFound)
}

func TestRecordFieldsRejectInvalid(t *testing.T) {
	_, err := saveRecordField(nil, "field", []byte(`not json`))
	assert.Error(t, err)

	_, err = saveRecordField([]byte(`{"hostname":"web-01"}`), "hostname.nested", []byte(`1`))
	assert.Error(t, err)
}
