package auth

import "testing"

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal plaintext")
	}
	if err := VerifyPassword(hash, "s3cret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password must not verify")
	}
}

func TestPasswordEmptyInputs(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("empty password must not hash")
	}
	if err := VerifyPassword("", "s3cret"); err == nil {
		t.Fatal("empty hash must not verify")
	}
}
