package crypto_test

import (
	"fmt"

	"github.com/TheMichaelB/taskcrypt/internal/crypto"
)

func ExampleEngine_Encrypt() {
	engine := crypto.NewEngine()
	engine.SetMasterPassword("correcthorse")
	defer engine.Close()

	token, err := engine.Encrypt("Buy milk")
	if err != nil {
		panic(err)
	}

	fmt.Println(engine.IsEncrypted(token))
	fmt.Println(engine.DecryptString(token))
	// Output:
	// true
	// Buy milk
}

func ExampleEngine_DecryptString() {
	engine := crypto.NewEngine()
	engine.SetMasterPassword("correcthorse")
	defer engine.Close()

	token, _ := engine.Encrypt("Buy milk")

	engine.SetMasterPassword("wrong")
	fmt.Println(engine.DecryptString(token))
	// Output: [ENCRYPTED]
}

func ExampleJSONCodec_LooksLikeEnvelope() {
	codec := crypto.NewJSONCodec()

	fmt.Println(codec.LooksLikeEnvelope("Buy milk"))
	fmt.Println(codec.LooksLikeEnvelope("eyJzYWx0IjoiIiwibm9uY2UiOiIiLCJjaXBoZXJ0ZXh0IjoiIn0="))
	// Output:
	// false
	// true
}
