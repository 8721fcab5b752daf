package xclient

// composeLayers 按组合律把注册序列折叠到基础 Service 上。
//
// 序约定：先注册者在最外层。实现上从注册序列的末尾向前逐层包装，
// 使 layers[0] 成为最外层、layers[n-1] 紧贴 base。
// 空序列直接返回 base（Identity 行为）。
//
// 设计决策: 不引入递归的二元 Stack 结构，而是用有序切片一次折叠。
// Go 没有零开销的泛型特化，递归嵌套只会把同一条序约定藏进类型里；
// 切片折叠在 Build 时执行一次，序约定由本函数单点维护。
func composeLayers(layers []Layer, base Service) Service {
	svc := base
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] == nil {
			continue
		}
		svc = layers[i].Wrap(svc)
	}
	return svc
}

// runInitializers 按注册顺序执行初始化器链。
// 与中间件链同一条序约定：先注册者先执行（最外层先看到请求）。
func runInitializers(inits []Initializer, rb *RequestBuilder) {
	for _, init := range inits {
		if init == nil {
			continue
		}
		init.Init(rb)
	}
}
