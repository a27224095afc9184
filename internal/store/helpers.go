package store

import (
	"math"
	"strings"
)

// CosineSimilarity はコサイン類似度を計算する（-1〜1、1が最も類似）
// 長さ不一致やゼロベクトルは-1を返す。
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)

	if normA == 0 || normB == 0 {
		return -1
	}

	return float32(dot / (normA * normB))
}

// ContainsAnyTag はtargetsのいずれかがtagsに含まれているかをチェックする（OR検索）
func ContainsAnyTag(tags []string, targets []string) bool {
	tagSet := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tagSet[tag] = true
	}

	for _, target := range targets {
		if tagSet[target] {
			return true
		}
	}

	return false
}

// ContainsString は値がsliceに含まれるかをチェックする
func ContainsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// NamespaceName はproject idからネームスペース名を決定的に導出する
// ベクトルストア側がコレクション名に"-"を扱えない場合があるため"_"へ置換する。
func NamespaceName(projectID string) string {
	return "project_" + strings.ReplaceAll(projectID, "-", "_")
}
