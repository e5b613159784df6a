// Package resume はレジュメファイルからプレーンテキストを抽出する。
package resume

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat は対応していないファイル形式のエラー
var ErrUnsupportedFormat = errors.New("unsupported resume format: only .pdf and .docx are supported")

// Parser はレジュメのテキスト抽出器
type Parser struct{}

// NewParser は新しい Parser を作成する
func NewParser() *Parser {
	return &Parser{}
}

// Extract はファイル名の拡張子に応じてテキストを抽出する
func (p *Parser) Extract(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return p.extractPDF(data)
	case ".docx":
		return p.extractDOCX(data)
	default:
		return "", ErrUnsupportedFormat
	}
}

func (p *Parser) extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, content); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// docx の document.xml から本文テキストのみを取り出す。
// 段落(w:p)の区切りは改行として扱う。
func (p *Parser) extractDOCX(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx archive: %w", err)
	}

	var document *zip.File
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return "", fmt.Errorf("invalid docx: word/document.xml not found")
	}

	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open docx document: %w", err)
	}
	defer rc.Close()

	var sb strings.Builder
	decoder := xml.NewDecoder(rc)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse docx document: %w", err)
		}

		switch t := token.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
