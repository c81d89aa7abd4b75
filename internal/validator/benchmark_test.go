package validator

import "testing"

func BenchmarkValidate(b *testing.B) {
	v := New(Options{})

	codes := []struct {
		name string
		code string
	}{
		{"benign", `print(df.sales.sum())`},
		{"suspicious", `const fs = require("fs"); fs.readFile("/etc/shadow")`},
		{"complex", `
const np = require("numeric");
const monthly = df.groupBy("month", "sales", "sum");
const trend = learn.linearRegression(np.arange(monthly.length), monthly.sales);
plt.plot(monthly.month, monthly.sales, "sales");
plt.plot(monthly.month, trend.predict(np.arange(monthly.length)), "trend");
plt.legend();
plt.show();
`},
	}

	for _, tc := range codes {
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				v.Validate(tc.code)
			}
		})
		b.Run(tc.name+"_scan", func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				v.Scan(tc.code)
			}
		})
	}
}
