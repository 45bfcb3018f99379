package auth

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/big"
)

// encodeMincryptPublicKey序列化一个RSA公钥为Android遗留的"mincrypt"格式
// 并base64编码，随后附加一个空格分隔的用户标签，供AUTH(RSAPUBLICKEY)使用
//
// 布局（全部小端32位字）：
//
//	modulus_len_words uint32
//	n0inv             uint32   // -n^-1 mod 2^32
//	modulus[len]      uint32   // 小端字数组
//	rr[len]           uint32   // R^2 mod n, R = 2^(32*len)
//	exponent          uint32
//
// 这一格式没有任何已知第三方库实现——它是adb协议本身规定的遗留细节，
// 因此这里用标准库math/big手写，而不是引入外部依赖
func encodeMincryptPublicKey(pub *rsa.PublicKey, label string) (string, error) {
	n := pub.N
	if n.Sign() <= 0 {
		return "", errors.New("auth: invalid modulus")
	}

	words := (n.BitLen() + 31) / 32
	if words == 0 {
		return "", errors.New("auth: modulus too small")
	}

	word32 := new(big.Int).Lsh(big.NewInt(1), 32)

	nMod := new(big.Int).Mod(n, word32)
	inv := new(big.Int).ModInverse(nMod, word32)
	if inv == nil {
		return "", errors.New("auth: modulus not invertible mod 2^32 (even modulus?)")
	}
	n0inv := new(big.Int).Sub(word32, inv)
	n0inv.Mod(n0inv, word32)

	rr := new(big.Int).Lsh(big.NewInt(1), uint(words*32*2))
	rr.Mod(rr, n)

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(words))
	binary.Write(&buf, binary.LittleEndian, uint32(n0inv.Uint64()))
	writeLittleEndianWords(&buf, n, words)
	writeLittleEndianWords(&buf, rr, words)
	binary.Write(&buf, binary.LittleEndian, uint32(pub.E))

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	return encoded + " " + label, nil
}

func writeLittleEndianWords(buf *bytes.Buffer, x *big.Int, words int) {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))
	tmp := new(big.Int).Set(x)
	word := new(big.Int)
	for i := 0; i < words; i++ {
		word.And(tmp, mask)
		binary.Write(buf, binary.LittleEndian, uint32(word.Uint64()))
		tmp.Rsh(tmp, 32)
	}
}
