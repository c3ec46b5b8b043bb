package jsonfile

import (
	"Portfolio_Pipeline/internal/models"
	"Portfolio_Pipeline/pkg/manifest"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "photos.json"))
	_, err := s.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, manifest.ErrNotFound))
}

func TestStore_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photos.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"photos": [`), 0644))

	_, err := NewStore(path).Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, manifest.ErrNotFound))
}

func TestStore_SaveFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "photos.json")
	s := NewStore(path)

	album := "Japan/Kyoto"
	m := &models.Manifest{Photos: []models.PhotoRecord{
		{ID: "Street__a", Src: "/t/Street/a.jpg", Full: "/f/Street/a.jpg", Alt: "Street photograph", Category: "Street", Width: 10, Height: 5},
		{ID: "Travel__Japan__Kyoto__b", Album: &album, Caption: "Rain & neon <3", Width: 3, Height: 2},
	}}
	require.NoError(t, s.Save(m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "{\n  \"photos\": [\n    {\n      \"id\": \"Street__a\",\n      \"src\""))
	assert.True(t, strings.HasSuffix(content, "}\n"))
	assert.Contains(t, content, `"album": null`)
	assert.Contains(t, content, `"exif": ""`)
	assert.Contains(t, content, `"caption": "Rain & neon <3"`)
	// 第一条记录没有说明文字，不应输出 caption 字段
	first := content[:strings.Index(content, "Travel__")]
	assert.NotContains(t, first, "caption")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Photos, 2)
	assert.Nil(t, loaded.Photos[0].Album)
	require.NotNil(t, loaded.Photos[1].Album)
	assert.Equal(t, "Japan/Kyoto", *loaded.Photos[1].Album)
}

func TestEncode_EmptyManifestHasPhotosArray(t *testing.T) {
	data, err := Encode(&models.Manifest{})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"photos\": []\n}\n", string(data))
}
