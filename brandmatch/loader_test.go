package brandmatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFirstColumnDelimited(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		mode    HeaderMode
		want    []string
	}{
		{"comma with header", "m.csv", "Marca,Clase\nBimbo,30\nMarinela,30\n", HeaderAuto, []string{"Bimbo", "Marinela"}},
		{"semicolon", "m.csv", "Bimbo;30\nMarinela;30\nGamesa;30\n", HeaderAuto, []string{"Bimbo", "Marinela", "Gamesa"}},
		{"quoted comma", "m.csv", "\"Pan, Dulce\",30\nBimbo,30\n", HeaderAbsent, []string{"Pan, Dulce", "Bimbo"}},
		{"bom and blank rows", "m.csv", "\ufeffNombre\n\nBimbo\n  \nGamesa\n", HeaderAuto, []string{"Bimbo", "Gamesa"}},
		{"forced header", "m.csv", "Bimbo\nMarinela\n", HeaderPresent, []string{"Marinela"}},
		{"no header", "m.csv", "Marca\nBimbo\n", HeaderAbsent, []string{"Marca", "Bimbo"}},
		{"trailing semicolon", "m.txt", "Bimbo;\nGamesa\n", HeaderAuto, []string{"Bimbo", "Gamesa"}},
		{"tsv", "m.tsv", "brand\tclass\nBimbo\t30\n", HeaderAuto, []string{"Bimbo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			got, err := ReadFirstColumn(path, tt.mode, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFirstColumnWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marcas.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, v := range []string{"Marca", "Bimbo", "Coca-Cola", "", "Gamesa"} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetCellValue(sheet, cell, v))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	got, err := ReadFirstColumn(path, HeaderAuto, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bimbo", "Coca-Cola", "Gamesa"}, got)

	_, err = ReadFirstColumn(path, HeaderAuto, "Missing")
	assert.ErrorIs(t, err, ErrDataSource)
}

func TestFileLoader(t *testing.T) {
	path := writeFile(t, "marcas.csv", "marca\nCoca Cola\ncoca cola\nPepsi\n")
	corpus, err := FileLoader{Path: path, Header: HeaderAuto}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"coca cola", "pepsi"}, corpus.Terms())

	corpus, err = LoadCorpus(context.Background(), path, HeaderAuto)
	require.NoError(t, err)
	assert.Equal(t, 2, corpus.Len())
}

func TestFileLoaderErrors(t *testing.T) {
	ctx := context.Background()

	_, err := FileLoader{Path: filepath.Join(t.TempDir(), "missing.csv")}.Load(ctx)
	assert.ErrorIs(t, err, ErrDataSource)

	_, err = FileLoader{}.Load(ctx)
	assert.ErrorIs(t, err, ErrDataSource)

	_, err = FileLoader{Path: writeFile(t, "empty.csv", "")}.Load(ctx)
	assert.ErrorIs(t, err, ErrDataSource)

	_, err = FileLoader{Path: writeFile(t, "header.csv", "marca\n"), Header: HeaderAuto}.Load(ctx)
	assert.ErrorIs(t, err, ErrDataSource)

	_, err = StaticLoader{" ", ""}.Load(ctx)
	assert.ErrorIs(t, err, ErrDataSource)
}

func TestHeaderNames(t *testing.T) {
	t.Cleanup(func() { SetHeaderNames(nil) })
	path := writeFile(t, "m.csv", "Registro\nBimbo\n")

	got, err := ReadFirstColumn(path, HeaderAuto, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Registro", "Bimbo"}, got)

	SetHeaderNames([]string{"registro"})
	got, err = ReadFirstColumn(path, HeaderAuto, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bimbo"}, got)
	assert.Contains(t, DefaultHeaderNames(), "marca")
}

func TestParseTerms(t *testing.T) {
	assert.Equal(t, []string{"Bimbo", "Gamesa", "Pan Dulce"}, ParseTerms("Bimbo\r\nGamesa; bimbo\n\n Pan Dulce "))
	assert.Equal(t, []string{"Coca-Cola", "Pepsi"}, ParseTerms("Coca-Cola\n  coca-cola \nCOCA-COLA\nPepsi\n"))
	assert.Empty(t, ParseTerms(" \n;\n"))
}
