package filedb

import "testing"

func TestCrashSafeWriteThenRead(t *testing.T) {
	fs := newFakeFS()
	assertNoErr(t, crashSafeWrite(fs, "data/db.log", []byte("hello")))
	got, err := fs.ReadFile("data/db.log")
	assertNoErr(t, err)
	if string(got) != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
	if _, ok := fs.files[tildePath("data/db.log")]; ok {
		t.Error("temp sibling should not remain after a successful rename")
	}
}

func TestEnsureDatafileIntegrityCreatesEmptyFile(t *testing.T) {
	fs := newFakeFS()
	assertNoErr(t, ensureDatafileIntegrity(fs, "db.log"))
	exists, err := fs.Exists("db.log")
	assertNoErr(t, err)
	if !exists {
		t.Error("expected an empty datafile to have been created")
	}
}

func TestEnsureDatafileIntegrityPromotesTempSibling(t *testing.T) {
	fs := newFakeFS()
	assertNoErr(t, fs.WriteFile(tildePath("db.log"), []byte("recovered")))
	assertNoErr(t, ensureDatafileIntegrity(fs, "db.log"))
	data, err := fs.ReadFile("db.log")
	assertNoErr(t, err)
	if string(data) != "recovered" {
		t.Errorf("expected the promoted temp sibling's contents, got %q", data)
	}
}

func TestValidateFilenameRejectsTildeSuffix(t *testing.T) {
	if err := validateFilename("db.log~"); !IsKind(err, ReservedFilename) {
		t.Errorf("expected ReservedFilename, got %v", err)
	}
	if err := validateFilename("db.log"); err != nil {
		t.Errorf("unexpected error for a normal filename: %v", err)
	}
}
