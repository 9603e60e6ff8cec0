package tenant

import (
	"net"
	"strings"
)

// SubdomainExtractor はHostヘッダーからサブドメインを抽出する。
// 開発・ステージング環境向けの特殊規則を含む。
type SubdomainExtractor struct {
	// DefaultSubdomain は解決不能なホストに対して返す既定のサブドメイン。
	DefaultSubdomain string
	// StagingSuffix はステージング環境のワイルドカードホストのサフィックス
	// （例: "staging.fleetman.app"）。一致するホストはテナントルーティングを
	// 行わず常に既定サブドメインへ振り向ける。空の場合はこの規則を無効にする。
	StagingSuffix string
}

// Extract はHostヘッダー値からサブドメインを抽出する。
// 戻り値のboolはサブドメインが解決できたかどうかを示す。
//
// 抽出規則:
//  1. ポート番号は取り除く。
//  2. ステージングサフィックスに一致するホストは実際のホストに関わらず
//     常に既定サブドメインを返す（ステージングのトラフィックが誤って
//     テナントルーティングに入らないようにする）。
//  3. "localhost" または素のIPリテラルは既定サブドメインを返す。
//     "acme.localhost" のように先頭ラベルを持つ場合はそのラベルを使う。
//  4. 通常の本番ホストは、ドット区切りラベルが3つ以上のときのみ
//     先頭ラベルをサブドメインとする。それ未満は解決不能。
func (e *SubdomainExtractor) Extract(host string) (string, bool) {
	host = stripPort(host)
	if host == "" {
		return "", false
	}

	// ステージングワイルドカード: 常に既定サブドメインへ
	if e.StagingSuffix != "" {
		if host == e.StagingSuffix || strings.HasSuffix(host, "."+e.StagingSuffix) {
			return e.DefaultSubdomain, true
		}
	}

	// localhost: 先頭ラベルがあればそれをサブドメインとして扱う
	if host == "localhost" {
		return e.DefaultSubdomain, true
	}
	if strings.HasSuffix(host, ".localhost") {
		label := strings.TrimSuffix(host, ".localhost")
		if label != "" && !strings.Contains(label, ".") {
			return label, true
		}
		return e.DefaultSubdomain, true
	}

	// 素のIPリテラル（IPv4/IPv6）: サブドメインの概念がないため既定へ
	if net.ParseIP(host) != nil {
		return e.DefaultSubdomain, true
	}

	// 本番ホスト: ラベル数が3未満ならサブドメインは解決不能
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return "", false
	}
	return labels[0], true
}

// stripPort はホストからポート番号部分を取り除く。
// "host:port" 形式でない場合は入力をそのまま返す。
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	// IPv6リテラルが括弧付きでポートなしの場合（"[::1]"）は括弧を外す
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host[1 : len(host)-1]
	}
	return host
}
