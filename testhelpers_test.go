package filedb_test

import "testing"

// AssertNoError and friends mirror the teacher's test_utils_test.go helpers
// (AssertNoError/AssertError/AssertEqual), dropped of everything that dialed
// a real MongoDB server: there is no network collaborator left to fake.

func AssertNoError(t *testing.T, err error, message string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", message, err)
	}
}

func AssertError(t *testing.T, err error, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected an error but got none", message)
	}
}

func AssertEqual(t *testing.T, expected, actual interface{}, message string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("%s - expected: %v, got: %v", message, expected, actual)
	}
}
