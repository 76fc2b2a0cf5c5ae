package backstore

/*
 * OSEmu - Backing store for swapped out pages
 *
 * Copyright 2025, The OSEmu Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Record file keyed by (process name, page number). Records append;
// the latest record for a page is authoritative.
type Store struct {
	path string
}

const (
	headerLine = "CSOPESY Backing Store - Page Data"
	formatLine = "Format: ProcessName:PageNumber:Data"
)

// New creates the backing store file, truncating any previous contents.
func New(path string) (*Store, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	_, err = fmt.Fprintf(file, "%s\n%s\n", headerLine, formatLine)
	if err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

// Path returns the file backing this store.
func (st *Store) Path() string {
	return st.path
}

// WritePage appends a record for one page. Words are written as
// four digit lower case hex separated by commas.
func (st *Store) WritePage(name string, page int, words []uint16) error {
	file, err := os.OpenFile(st.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(page))
	sb.WriteByte(':')
	for i, w := range words {
		if i != 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%04x", w)
	}
	sb.WriteByte('\n')

	_, err = file.WriteString(sb.String())
	return err
}

// ReadPage scans the whole file for records matching (name, page) and
// returns the words of the last one. Multiple page outs leave stale
// records behind; last match wins. The returned slice always has
// count entries, missing or malformed words read as zero.
func (st *Store) ReadPage(name string, page int, count int) ([]uint16, bool) {
	file, err := os.Open(st.path)
	if err != nil {
		return nil, false
	}
	defer file.Close()

	prefix := name + ":" + strconv.Itoa(page) + ":"
	data := ""
	found := false

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == headerLine || line == formatLine {
			continue
		}
		if strings.HasPrefix(line, prefix) {
			data = line[len(prefix):]
			found = true
		}
	}
	if !found {
		return nil, false
	}

	words := make([]uint16, count)
	for i, field := range strings.Split(data, ",") {
		if i >= count {
			break
		}
		v, err := strconv.ParseUint(strings.TrimSpace(field), 16, 16)
		if err != nil {
			continue
		}
		words[i] = uint16(v)
	}
	return words, true
}
